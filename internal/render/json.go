package render

import (
	"encoding/json"
	"fmt"

	"ai-fitness-planner/internal/fitness"
)

func jsonIndent(p fitness.Plan) ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan: %w", err)
	}
	return append(data, '\n'), nil
}
