//go:build js && wasm

package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"syscall/js"
	"time"

	cycling "github.com/lucasjlepore/cycling-analyzer"
	"github.com/lucasjlepore/cycling-analyzer/pipeline"
)

func main() {
	js.Global().Set("analyzeWorkout", js.FuncOf(analyzeWorkout))
	select {}
}

func failure(format string, args ...any) map[string]any {
	return map[string]any{"ok": false, "error": fmt.Sprintf(format, args...)}
}

// analyzeWorkout(fileBytes Uint8Array, options object) runs the single-workout
// pipeline in memory and returns the artifacts as one zip.
func analyzeWorkout(_ js.Value, args []js.Value) any {
	if len(args) < 2 {
		return failure("expected arguments: fileBytes(Uint8Array), options(object)")
	}
	data, opts := args[0], args[1]
	if data.IsUndefined() || data.IsNull() || data.Get("length").Int() == 0 {
		return failure("workout file bytes are required")
	}
	raw := make([]byte, data.Get("length").Int())
	if js.CopyBytesToGo(raw, data) == 0 {
		return failure("failed to read workout bytes from JS input")
	}

	ftp := numberOption(opts, "ftp_w")
	if ftp <= 0 {
		return failure("ftp_w must be a positive number")
	}
	mode, ok := cycling.ParseWindowMode(stringOption(opts, "window_mode", "elapsed"))
	if !ok {
		return failure("window_mode must be elapsed or samples")
	}
	basis, ok := cycling.ParseTimeBasis(stringOption(opts, "time_basis", "moving"))
	if !ok {
		return failure("time_basis must be moving or samples")
	}

	result, err := pipeline.RunBytes(pipeline.BytesOptions{
		SourceFileName: stringOption(opts, "source_file_name", "input.tcx"),
		Data:           raw,
		FTPWatts:       ftp,
		Format:         stringOption(opts, "format", "parquet"),
		CopySource:     true,
		Metrics:        cycling.Options{WindowMode: mode, TimeBasis: basis},
	})
	if err != nil {
		return failure("%v", err)
	}

	names := make([]string, 0, len(result.Files))
	for name := range result.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	archive, err := zipFiles(names, result.Files)
	if err != nil {
		return failure("create zip: %v", err)
	}
	payload := js.Global().Get("Uint8Array").New(len(archive))
	js.CopyBytesToJS(payload, archive)

	out := map[string]any{
		"ok":       true,
		"zip":      payload,
		"files":    toJSArray(names),
		"warnings": toJSArray(result.Warnings),
	}
	if tss := result.Snapshot.TrainingStress; tss != nil {
		out["tss"] = *tss
	}
	return out
}

// zipFiles writes files in names order with a fixed mtime so identical
// input yields identical archives.
func zipFiles(names []string, files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	epoch := time.Unix(0, 0).UTC()
	for _, name := range names {
		h := &zip.FileHeader{Name: name, Method: zip.Deflate}
		h.SetModTime(epoch)
		w, err := zw.CreateHeader(h)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func option(v js.Value, key string) (js.Value, bool) {
	if v.IsUndefined() || v.IsNull() {
		return js.Value{}, false
	}
	out := v.Get(key)
	if out.IsUndefined() || out.IsNull() {
		return js.Value{}, false
	}
	return out, true
}

func stringOption(v js.Value, key, fallback string) string {
	out, ok := option(v, key)
	if !ok || out.Type() != js.TypeString || out.String() == "" {
		return fallback
	}
	return out.String()
}

func numberOption(v js.Value, key string) float64 {
	out, ok := option(v, key)
	if !ok || out.Type() != js.TypeNumber {
		return 0
	}
	return out.Float()
}

func toJSArray(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
