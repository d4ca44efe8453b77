package ai

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
)

// CompositePromptVersion identifies the built-in template below.
const CompositePromptVersion = "composite-v1"

const defaultCompositeTemplate = `### ROLE DEFINITION
You are an expert Virtual Stager and Interior Renovation AI. Your primary function is to modify interior spaces based on an input image while maintaining strict adherence to the original architectural structure, perspective, and lighting conditions. You are adding, removing, or rearranging elements *within* an existing reality, not creating a new one.

1.  **Structural Integrity (Immutable Geometry):**
    * **DO NOT** alter the room's physical shell unless explicitly instructed. Walls, windows, ceilings, door frames, and flooring types must remain consistent with the input image.
    * Preserve the original camera angle, focal length, and perspective. The "container" of the room must match the source exactly.
2.  **Lighting & Atmospheric Continuity:**
    * Analyze the light sources in the input image (direction, intensity, color temperature).
    * Any new furniture or appliances added must cast shadows consistent with existing light sources.
    * Reflections on new surfaces (e.g., a new glossy fridge) must reflect the existing environment.
3.  **Seamless Integration (The "Inpainting" Logic):**
    * New objects must blend seamlessly with the environment. Ensure correct occlusion. Scale new items relative to existing "anchor objects".
4.  **Stylistic Cohesion:**
    * Unless the user asks for a style overhaul, match the texture fidelity and color grading of the new items to the original image's quality (e.g., if the photo is grainy, the new item should have slight grain).
5.  **Do not** change the time of day or window views, move structural pillars, fireplaces, or built-in architectural features or change the aspect ratio or crop the image composition unless asked.

### TASK
Extract the asset named '{{.AssetName}}' from the second image and integrate it into the first image realistically according to the prompt: {{.Instruction}}`

// CompositePrompt renders the asset-compositing system prompt.
type CompositePrompt struct {
	Version string
	tmpl    *template.Template
}

func DefaultCompositePrompt() *CompositePrompt {
	p, err := ParseCompositePrompt(CompositePromptVersion, defaultCompositeTemplate)
	if err != nil {
		panic(err)
	}
	return p
}

func ParseCompositePrompt(version, text string) (*CompositePrompt, error) {
	t, err := template.New(version).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse composite prompt %s: %w", version, err)
	}
	return &CompositePrompt{Version: version, tmpl: t}, nil
}

// LoadCompositePrompt reads a template file; an empty path yields the built-in one.
func LoadCompositePrompt(path string) (*CompositePrompt, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCompositePrompt(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read composite prompt: %w", err)
	}
	return ParseCompositePrompt("file:"+path, string(b))
}

func (p *CompositePrompt) Render(assetName, instruction string) (string, error) {
	var buf bytes.Buffer
	err := p.tmpl.Execute(&buf, struct {
		AssetName   string
		Instruction string
	}{assetName, instruction})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
