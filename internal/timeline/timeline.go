// Package timeline implements the Timeline Writer/Reader:
// canonical, key-sorted JSON serialization of a pipeline run plus a
// self-verifying content hash, and source-hash validation for conform.
//
// Grounded on original_source/worker/timeline.py, with one deliberate
// divergence scoped to timeline_hash only: the original computes its final
// timeline_hash over the *output file's* path:mtime:size stat tuple (the
// same function it uses for source_hashes), not over the JSON content.
// This package instead treats timeline_hash as a true content hash: sha256
// over the canonical serialization with the timeline_hash key absent,
// verifying the exact bytes that would exist if the hash field were
// stripped. source_hashes keeps the original's path:mtime:size formula
// unchanged, so a file touched without content changes still invalidates.
package timeline

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"creative-studio-server/internal/pipeline"
)

// WriteOptions carries the optional music-analysis fields the Assembler
// supplies when it used beat/bar-synced trimming.
type WriteOptions struct {
	FPS              int
	TargetSeconds    int
	UsedSceneDetect  bool
	UsedBeatSnapping bool
	BarMarkers       []float64
	Tempo            *float64
	TimeSignature    string
}

// nowFunc is overridable in tests so CreatedAt is deterministic.
var nowFunc = time.Now

// Write assembles, canonically serializes, hashes, and writes a timeline to
// outputPath. Returns the absolute output path.
func Write(clips []pipeline.TimelineClip, musicPath string, outputPath string, opts WriteOptions) (string, error) {
	absClips := make([]pipeline.TimelineClip, len(clips))
	for i, c := range clips {
		abs, err := absPath(c.Src)
		if err != nil {
			return "", err
		}
		absClips[i] = pipeline.TimelineClip{Src: abs, In: round3(c.In), Out: round3(c.Out)}
	}

	musicAbs, err := absPath(musicPath)
	if err != nil {
		return "", err
	}

	doc := map[string]interface{}{
		"clips":              clipsToJSON(absClips),
		"fps":                opts.FPS,
		"target_seconds":     opts.TargetSeconds,
		"music":              musicAbs,
		"used_scene_detect":  opts.UsedSceneDetect,
		"used_beat_snapping": opts.UsedBeatSnapping,
		"created_at":         nowFunc().Format(time.RFC3339),
		"version":            "1.0",
	}

	if opts.BarMarkers != nil {
		doc["bar_markers"] = opts.BarMarkers
	}
	if opts.Tempo != nil {
		doc["tempo"] = *opts.Tempo
	}
	if opts.TimeSignature != "" {
		doc["time_signature"] = opts.TimeSignature
	}

	sourceHashes := map[string]string{}
	for _, c := range absClips {
		if h, err := pathStatHash(c.Src); err == nil {
			sourceHashes[c.Src] = h
		}
	}
	if h, err := pathStatHash(musicAbs); err == nil {
		sourceHashes[musicAbs] = h
	}
	doc["source_hashes"] = sourceHashes

	absOut, err := absPath(outputPath)
	if err != nil {
		return "", err
	}

	// First pass: serialize without timeline_hash, hash those bytes.
	bodyBytes, err := marshalSortedIndent(doc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", pipeline.ErrTimelineInvalid, err)
	}
	sum := sha256.Sum256(bodyBytes)
	doc["timeline_hash"] = hex.EncodeToString(sum[:])

	finalBytes, err := marshalSortedIndent(doc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", pipeline.ErrTimelineInvalid, err)
	}

	if err := os.WriteFile(absOut, finalBytes, 0o644); err != nil {
		return "", err
	}

	return absOut, nil
}

func clipsToJSON(clips []pipeline.TimelineClip) []map[string]interface{} {
	out := make([]map[string]interface{}, len(clips))
	for i, c := range clips {
		out[i] = map[string]interface{}{"src": c.Src, "in": c.In, "out": c.Out}
	}
	return out
}

// Read parses and validates a timeline file: required
// fields present, each clip has numeric in < out. It does not recompute the
// hash (that is Validate's job, and source validation is a separate
// concern — ValidateSources).
func Read(path string) (*pipeline.Timeline, map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", pipeline.ErrSourceNotFound, path)
		}
		return nil, nil, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", pipeline.ErrTimelineInvalid, err)
	}

	for _, field := range []string{"clips", "fps", "target_seconds", "music", "timeline_hash"} {
		if _, ok := raw[field]; !ok {
			return nil, nil, fmt.Errorf("%w: missing field %q", pipeline.ErrTimelineInvalid, field)
		}
	}

	rawClips, ok := raw["clips"].([]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("%w: clips must be an array", pipeline.ErrTimelineInvalid)
	}

	clips := make([]pipeline.TimelineClip, 0, len(rawClips))
	for i, rc := range rawClips {
		m, ok := rc.(map[string]interface{})
		if !ok {
			return nil, nil, fmt.Errorf("%w: clip %d malformed", pipeline.ErrTimelineInvalid, i)
		}
		src, _ := m["src"].(string)
		in, inOK := m["in"].(float64)
		out, outOK := m["out"].(float64)
		if src == "" || !inOK || !outOK {
			return nil, nil, fmt.Errorf("%w: clip %d missing src/in/out", pipeline.ErrTimelineInvalid, i)
		}
		if in >= out {
			return nil, nil, fmt.Errorf("%w: clip %d invalid timecode: in >= out", pipeline.ErrTimelineInvalid, i)
		}
		clips = append(clips, pipeline.TimelineClip{Src: src, In: in, Out: out})
	}

	tl := &pipeline.Timeline{
		Clips:            clips,
		Music:            raw["music"].(string),
		TimelineHash:     raw["timeline_hash"].(string),
		UsedSceneDetect:  boolField(raw, "used_scene_detect"),
		UsedBeatSnapping: boolField(raw, "used_beat_snapping"),
		CreatedAt:        stringField(raw, "created_at"),
		Version:          stringField(raw, "version"),
		TimeSignature:    stringField(raw, "time_signature"),
	}
	if fps, ok := raw["fps"].(float64); ok {
		tl.FPS = int(fps)
	}
	if ts, ok := raw["target_seconds"].(float64); ok {
		tl.TargetSeconds = int(ts)
	}
	if bm, ok := raw["bar_markers"].([]interface{}); ok {
		for _, v := range bm {
			if f, ok := v.(float64); ok {
				tl.BarMarkers = append(tl.BarMarkers, f)
			}
		}
	}
	if t, ok := raw["tempo"].(float64); ok {
		tl.Tempo = &t
	}
	if sh, ok := raw["source_hashes"].(map[string]interface{}); ok {
		tl.SourceHashes = map[string]string{}
		for k, v := range sh {
			if s, ok := v.(string); ok {
				tl.SourceHashes[k] = s
			}
		}
	}

	return tl, raw, nil
}

func boolField(m map[string]interface{}, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// Validate recomputes sha256 over the serialization with timeline_hash
// stripped and compares it to the stored value.
func Validate(raw map[string]interface{}) error {
	stored, _ := raw["timeline_hash"].(string)
	stripped := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if k == "timeline_hash" {
			continue
		}
		stripped[k] = v
	}
	bodyBytes, err := marshalSortedIndent(stripped)
	if err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrTimelineInvalid, err)
	}
	sum := sha256.Sum256(bodyBytes)
	computed := hex.EncodeToString(sum[:])
	if computed != stored {
		return fmt.Errorf("%w: hash mismatch", pipeline.ErrTimelineInvalid)
	}
	return nil
}

// ValidateSources verifies every entry in source_hashes still exists on
// disk with a matching path:mtime:size hash, so a touched-but-unchanged
// file (mtime bumped, content identical) is still detected as changed.
func ValidateSources(tl *pipeline.Timeline) error {
	for path, expected := range tl.SourceHashes {
		actual, err := pathStatHash(path)
		if err != nil {
			return fmt.Errorf("%w: %s", pipeline.ErrTimelineSourcesChanged, path)
		}
		if actual != expected {
			return fmt.Errorf("%w: %s", pipeline.ErrTimelineSourcesChanged, path)
		}
	}
	return nil
}

// pathStatHash hashes "path:mtime:size" the same way pipeline.ClipRef
// documents, so source_hashes entries change whenever a file is touched
// even if its content is byte-identical.
func pathStatHash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	mtime := float64(info.ModTime().UnixNano()) / 1e9
	fileInfo := fmt.Sprintf("%s:%f:%d", path, mtime, info.Size())
	sum := sha256.Sum256([]byte(fileInfo))
	return hex.EncodeToString(sum[:]), nil
}

// marshalSortedIndent serializes v with 2-space indentation and
// lexicographically sorted object keys for a reproducible, hashable
// byte stream. encoding/json already sorts map[string]any keys,
// but we walk explicitly to also guarantee nested maps sort, and to keep
// output stable regardless of json package version behavior.
func marshalSortedIndent(v interface{}) ([]byte, error) {
	normalized := normalize(v)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}
	// encoder appends a trailing newline; keep it, matching json.dump's file output.
	return buf.Bytes(), nil
}

// normalize walks a value produced by json.Unmarshal (or our own map
// literals) into a form using sorted-key ordered maps. encoding/json
// marshals map[string]interface{} with sorted keys already, so normalize's
// real job is just to recurse consistently; it is kept explicit for
// clarity and to centralize future canonicalization needs (e.g. number
// formatting) in one place.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(val))
		for _, k := range keys {
			out[k] = normalize(val[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	default:
		return val
	}
}

func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}
