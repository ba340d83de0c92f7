package gradio

import (
	"context"

	"github.com/manash/moodboard/pkg/models"
)

func (p *Provider) Edit(ctx context.Context, req *models.EditRequest) (*models.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	template := req.Template
	if template == "" {
		template = p.editTemplate
	}

	// Slot 0 is the uploaded-image input, unused when the backend already holds the file.
	data := []any{nil, models.Basename(req.ImagePath)}
	data = append(data, regionCoords(req.Region)...)
	data = append(data, req.Prompt, req.Model, template, req.IncludeReasoning)

	return p.call(ctx, opEdit, editEndpoint, apiRequest{Data: data})
}

// regionCoords yields x1, y1, x2, y2, or four nulls for the whole image.
func regionCoords(r *models.Region) []any {
	if r == nil {
		return []any{nil, nil, nil, nil}
	}
	return []any{r.X1, r.Y1, r.X2, r.Y2}
}
