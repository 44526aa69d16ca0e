package tgstats

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// StatisticalGraph is a graph payload in one of exactly three states:
// chart data available right away (GraphChart), chart data to be
// materialized later via Statistics.RequestZoom (GraphAsync), or a
// backend-reported failure (GraphError). Consumers are expected to
// switch over all three.
type StatisticalGraph interface {
	statisticalGraph()
}

// GraphChart carries the chart payload verbatim. The chart format is
// opaque to this module. ZoomToken may be empty.
type GraphChart struct {
	Data      json.RawMessage
	ZoomToken string
}

// GraphAsync defers chart materialization until the token is resolved.
type GraphAsync struct {
	Token string
}

type GraphError struct {
	Message string
}

func (GraphChart) statisticalGraph() {}
func (GraphAsync) statisticalGraph() {}
func (GraphError) statisticalGraph() {}

// graphPayload decodes the statsGraph wire union.
type graphPayload struct {
	value StatisticalGraph
}

func (g *graphPayload) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Type string `json:"_"`
		JSON struct {
			Data string `json:"data"`
		} `json:"json"`
		ZoomToken string `json:"zoom_token"`
		Token     string `json:"token"`
		Error     string `json:"error"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	switch envelope.Type {
	case "statsGraph":
		g.value = GraphChart{
			Data:      json.RawMessage(envelope.JSON.Data),
			ZoomToken: envelope.ZoomToken,
		}
	case "statsGraphAsync":
		g.value = GraphAsync{Token: envelope.Token}
	case "statsGraphError":
		g.value = GraphError{Message: envelope.Error}
	default:
		return errors.Errorf("unknown graph constructor [%s]", envelope.Type)
	}

	return nil
}

// graph returns the decoded variant. A graph field the backend did not
// fill decodes to an empty chart.
func (g graphPayload) graph() StatisticalGraph {
	if g.value == nil {
		return GraphChart{}
	}

	return g.value
}
