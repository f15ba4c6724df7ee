//go:build js && wasm

// Musngr WASM: client-side background rendering and tag reading.
// Compiled with: GOOS=js GOARCH=wasm go build -o musngr.wasm ./clients/wasm/
package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/xob0t/musngr/pkg/background"
	"github.com/xob0t/musngr/pkg/metadata"
)

// No font directories exist in the browser; families resolve to the
// embedded Go fonts.
var generator = background.NewGenerator(nil, nil)

func main() {
	fmt.Println("Musngr WASM loaded")

	js.Global().Set("goRenderBackground", js.FuncOf(renderBackground))
	js.Global().Set("goPreviewBackground", js.FuncOf(previewBackground))
	js.Global().Set("goReadTags", js.FuncOf(readTags))
	js.Global().Set("goBackgroundOptions", js.FuncOf(backgroundOptions))
	js.Global().Set("goReady", js.ValueOf(true))

	// Block forever (WASM must not exit).
	select {}
}

func parseSpec(args []js.Value) (background.Spec, error) {
	spec := background.Defaults()
	if len(args) < 1 {
		return spec, fmt.Errorf("need specJSON")
	}
	if s := args[0].String(); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &spec); err != nil {
			return spec, fmt.Errorf("parse spec: %w", err)
		}
	}
	return spec, spec.Validate()
}

// goRenderBackground(specJSON) returns a base64 PNG.
func renderBackground(this js.Value, args []js.Value) interface{} {
	spec, err := parseSpec(args)
	if err != nil {
		return js.ValueOf("error: " + err.Error())
	}
	blob, err := generator.Render(spec)
	if err != nil {
		return js.ValueOf("error: " + err.Error())
	}
	return js.ValueOf(base64.StdEncoding.EncodeToString(blob.Data))
}

// goPreviewBackground(specJSON) returns a PNG data URI for an <img> src.
func previewBackground(this js.Value, args []js.Value) interface{} {
	spec, err := parseSpec(args)
	if err != nil {
		return js.ValueOf("error: " + err.Error())
	}
	uri, err := generator.Preview(spec)
	if err != nil {
		return js.ValueOf("error: " + err.Error())
	}
	return js.ValueOf(uri)
}

// goReadTags(fileName, base64Audio) returns tags and suggestions as JSON.
func readTags(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.ValueOf("error: need fileName, base64Audio")
	}
	name := args[0].String()
	data, err := base64.StdEncoding.DecodeString(args[1].String())
	if err != nil {
		return js.ValueOf("error: invalid base64: " + err.Error())
	}

	tags := metadata.Extract(name, data)
	resp := map[string]interface{}{
		"tags":                  tags,
		"suggested_title":       metadata.SuggestedTitle(name, tags),
		"suggested_description": metadata.SuggestedDescription(tags, ""),
		"has_artwork":           tags.HasArtwork(),
	}
	if art, ok := tags.Artwork(); ok {
		resp["artwork"] = "data:" + art.Type + ";base64," + base64.StdEncoding.EncodeToString(art.Data)
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return js.ValueOf("error: " + err.Error())
	}
	return js.ValueOf(string(out))
}

// goBackgroundOptions() lists the accepted style, font and alignment names.
func backgroundOptions(this js.Value, args []js.Value) interface{} {
	out, _ := json.Marshal(map[string]interface{}{
		"styles":     background.Styles,
		"fonts":      background.Fonts,
		"alignments": background.Alignments,
	})
	return js.ValueOf(string(out))
}
