package messages

import "github.com/aukilabs/quadfield/quadtree"

// FieldList is the body returned when listing fields.
type FieldList struct {
	Fields []FieldInfo `json:"fields"`
}

// ConstructRequest bulk loads positions into a field. Colors are matched
// with positions by index.
type ConstructRequest struct {
	Positions []quadtree.Vector3f `json:"positions"`
	Colors    []Color             `json:"colors,omitempty"`
}

// ConstructResponse reports the outcome of a bulk load.
type ConstructResponse struct {
	Result    quadtree.BulkResult `json:"result"`
	EntityIDs []uint32            `json:"entity_ids"`
}

// HTTPError is the body of failed REST requests.
type HTTPError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}
