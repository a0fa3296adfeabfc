// Package fcpxml implements the FCP7 XML Exporter: converting a written
// Timeline into a Final Cut Pro 7 XML (.xml) sequence that Premiere Pro and
// other NLEs can import directly.
//
// Grounded on original_source/worker/fcp7_xml_generator.py's
// FCP7XMLGenerator, with one correctness fix: the original hardcodes every
// clip's on-timeline duration at a fixed 50 frames (2 seconds at 25fps)
// regardless of the clip's actual in/out, and lays clips end-to-end on that
// same fixed stride — so an 8-second trim and a 1-second trim render
// identically and overlap/gap against their neighbors. This port derives
// each clipitem's frame duration and timeline position from the timeline's
// own fps and each clip's actual in/out, so the exported sequence matches
// the rendered highlight. encoding/xml builds the tree; no third-party XML
// library appears anywhere in the dependency pack for this one-shot,
// fully-specified document shape.
package fcpxml

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"creative-studio-server/internal/pipeline"
	"creative-studio-server/internal/timeline"
)

const (
	sequenceName  = "Highlight Reel Sequence"
	defaultFPS    = 30
	frameWidth    = 1280
	frameHeight   = 720
	audioDepth    = 16
	audioSampleHz = 48000
)

type xmeml struct {
	XMLName  xml.Name `xml:"xmeml"`
	Version  string   `xml:"version,attr"`
	Sequence sequence `xml:"sequence"`
}

type sequence struct {
	ID       string   `xml:"id,attr"`
	Name     string   `xml:"name"`
	Duration int      `xml:"duration"`
	Rate     rate     `xml:"rate"`
	Timecode timecode `xml:"timecode"`
	Media    media    `xml:"media"`
}

type rate struct {
	Timebase int    `xml:"timebase"`
	NTSC     string `xml:"ntsc"`
}

func fpsRate(fps int) rate { return rate{Timebase: fps, NTSC: "FALSE"} }

type timecode struct {
	Rate          rate   `xml:"rate"`
	String        string `xml:"string"`
	Frame         int    `xml:"frame"`
	DisplayFormat string `xml:"displayformat"`
}

type media struct {
	Video videoTrack `xml:"video"`
	Audio audioTrack `xml:"audio"`
}

type videoTrack struct {
	Format videoFormat `xml:"format"`
	Track  track       `xml:"track"`
}

type videoFormat struct {
	SampleCharacteristics videoSampleCharacteristics `xml:"samplecharacteristics"`
}

type videoSampleCharacteristics struct {
	Rate             rate   `xml:"rate"`
	Width            int    `xml:"width"`
	Height           int    `xml:"height"`
	PixelAspectRatio string `xml:"pixelaspectratio"`
	FieldDominance   string `xml:"fielddominance"`
	ColorDepth       int    `xml:"colordepth"`
}

type audioTrack struct {
	Format audioFormat `xml:"format"`
	Track  track       `xml:"track"`
}

type audioFormat struct {
	SampleCharacteristics audioSampleCharacteristics `xml:"samplecharacteristics"`
}

type audioSampleCharacteristics struct {
	Depth      int `xml:"depth"`
	SampleRate int `xml:"samplerate"`
}

type track struct {
	ClipItems []clipItem `xml:"clipitem"`
}

type clipItem struct {
	ID          string      `xml:"id,attr"`
	Name        string      `xml:"name"`
	Duration    int         `xml:"duration"`
	Start       int         `xml:"start"`
	End         int         `xml:"end"`
	In          int         `xml:"in"`
	Out         int         `xml:"out"`
	File        fileRef     `xml:"file"`
	SourceTrack sourceTrack `xml:"sourcetrack"`
}

type sourceTrack struct {
	MediaType  string `xml:"mediatype"`
	TrackIndex int    `xml:"trackindex"`
}

type fileRef struct {
	ID       string    `xml:"id,attr"`
	PathURL  string    `xml:"pathurl"`
	Duration int       `xml:"duration"`
	Rate     rate      `xml:"rate"`
	Media    fileMedia `xml:"media"`
}

type fileMedia struct {
	Video *fileVideoMedia `xml:"video,omitempty"`
	Audio *fileAudioMedia `xml:"audio,omitempty"`
}

type fileVideoMedia struct {
	SampleCharacteristics fileVideoSampleCharacteristics `xml:"samplecharacteristics"`
}

type fileVideoSampleCharacteristics struct {
	Width            int    `xml:"width"`
	Height           int    `xml:"height"`
	PixelAspectRatio string `xml:"pixelaspectratio"`
	FieldDominance   string `xml:"fielddominance"`
}

type fileAudioMedia struct {
	SampleCharacteristics audioSampleCharacteristics `xml:"samplecharacteristics"`
}

// Generate reads a Timeline from timelinePath and writes a FCP7 XML
// sequence to outputPath, returning the absolute output path. outputPath
// of "" defaults to highlight_timeline.xml alongside the timeline file.
func Generate(timelinePath, outputPath string) (string, error) {
	tl, _, err := timeline.Read(timelinePath)
	if err != nil {
		return "", err
	}

	if outputPath == "" {
		outputPath = filepath.Join(filepath.Dir(timelinePath), "highlight_timeline.xml")
	}
	outputPath, err = filepath.Abs(outputPath)
	if err != nil {
		return "", err
	}

	fps := tl.FPS
	if fps <= 0 {
		fps = defaultFPS
	}

	videoClips := make([]clipItem, len(tl.Clips))
	frame := 0
	for i, c := range tl.Clips {
		durationFrames := int((c.Out - c.In) * float64(fps))
		if durationFrames < 1 {
			durationFrames = 1
		}
		videoClips[i] = clipItem{
			ID:       fmt.Sprintf("clipitem-%d", i+1),
			Name:     filepath.Base(c.Src),
			Duration: durationFrames,
			Start:    frame,
			End:      frame + durationFrames,
			In:       int(c.In * float64(fps)),
			Out:      int(c.Out * float64(fps)),
			File: fileRef{
				ID:       fmt.Sprintf("file-%d", i+1),
				PathURL:  fileURL(c.Src),
				Duration: durationFrames,
				Rate:     fpsRate(fps),
				Media: fileMedia{Video: &fileVideoMedia{SampleCharacteristics: fileVideoSampleCharacteristics{
					Width: frameWidth, Height: frameHeight, PixelAspectRatio: "square", FieldDominance: "none",
				}}},
			},
			SourceTrack: sourceTrack{MediaType: "video", TrackIndex: 1},
		}
		frame += durationFrames
	}

	totalFrames := frame
	if targetFrames := tl.TargetSeconds * fps; targetFrames > totalFrames {
		totalFrames = targetFrames
	}

	musicClip := clipItem{
		ID:       "music-clipitem",
		Name:     "Background Music",
		Duration: totalFrames,
		Start:    0,
		End:      totalFrames,
		In:       0,
		Out:      totalFrames,
		File: fileRef{
			ID:       "music-file",
			PathURL:  fileURL(tl.Music),
			Duration: totalFrames,
			Rate:     fpsRate(fps),
			Media: fileMedia{Audio: &fileAudioMedia{SampleCharacteristics: audioSampleCharacteristics{
				Depth: audioDepth, SampleRate: audioSampleHz,
			}}},
		},
		SourceTrack: sourceTrack{MediaType: "audio", TrackIndex: 1},
	}

	doc := xmeml{
		Version: "5",
		Sequence: sequence{
			ID:       "sequence-1",
			Name:     sequenceName,
			Duration: totalFrames,
			Rate:     fpsRate(fps),
			Timecode: timecode{Rate: fpsRate(fps), String: "01:00:00:00", Frame: 0, DisplayFormat: "NDF"},
			Media: media{
				Video: videoTrack{
					Format: videoFormat{SampleCharacteristics: videoSampleCharacteristics{
						Rate: fpsRate(fps), Width: frameWidth, Height: frameHeight,
						PixelAspectRatio: "square", FieldDominance: "none", ColorDepth: 24,
					}},
					Track: track{ClipItems: videoClips},
				},
				Audio: audioTrack{
					Format: audioFormat{SampleCharacteristics: audioSampleCharacteristics{Depth: audioDepth, SampleRate: audioSampleHz}},
					Track:  track{ClipItems: []clipItem{musicClip}},
				},
			},
		},
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: %v", pipeline.ErrTimelineInvalid, err)
	}

	out := append([]byte(xml.Header), body...)
	out = append(out, '\n')
	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		return "", err
	}

	return outputPath, nil
}

// fileURL formats an absolute filesystem path as a file:// URL the way
// Premiere Pro's FCP7 XML importer expects, percent-encoding reserved
// characters but leaving path separators intact.
func fileURL(path string) string {
	u := &url.URL{Scheme: "file", Path: path}
	return u.String()
}
