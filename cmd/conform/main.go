// Command conform is the Conformer's command-line surface:
// it re-renders a previously emitted Timeline from its original source
// clips at master quality, with an optional music overlay.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"creative-studio-server/config"
	"creative-studio-server/internal/conform"
	"creative-studio-server/pkg/videoengine"
)

var rootCmd = &cobra.Command{
	Use:   "conform",
	Short: "Re-render a highlight timeline from its original sources at master quality",
	Long: `conform reads a timeline.json produced by the Assembler and re-renders it
from the original source clips at master quality (H.264 preset medium, CRF
18, the timeline's own fps, pixel format yuv420p), optionally muxing music
on top under the same loudness-normalization chain the preview uses.`,
	RunE: runConform,
}

func init() {
	rootCmd.Flags().String("timeline", "", "path to the timeline.json to conform (required)")
	rootCmd.Flags().String("out", "", "output path for the master file (required)")
	rootCmd.Flags().String("music", "", "override the timeline's music track")
	rootCmd.Flags().Bool("no-audio", false, "skip the music overlay and emit video only")
	rootCmd.Flags().String("temp-dir", "", "directory for intermediate render artifacts")
	rootCmd.MarkFlagRequired("timeline")
	rootCmd.MarkFlagRequired("out")
}

func runConform(cmd *cobra.Command, args []string) error {
	timelinePath, _ := cmd.Flags().GetString("timeline")
	outPath, _ := cmd.Flags().GetString("out")
	musicPath, _ := cmd.Flags().GetString("music")
	noAudio, _ := cmd.Flags().GetBool("no-audio")
	tempDir, _ := cmd.Flags().GetString("temp-dir")

	if err := config.LoadConfig(); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	gw, err := videoengine.CheckAvailability(context.Background(), config.AppConfig)
	if err != nil {
		return fmt.Errorf("transcoder unavailable: %w", err)
	}

	conformer := conform.New(gw)
	result, err := conformer.Conform(context.Background(), conform.Options{
		TimelinePath: timelinePath,
		OutputPath:   outPath,
		MusicPath:    musicPath,
		NoAudio:      noAudio,
		TempDir:      tempDir,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "master output written to %s\n", result.OutputPath)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
