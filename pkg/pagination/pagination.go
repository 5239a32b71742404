// Package pagination provides limit/offset paging shared by the list
// endpoints.
package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a validated limit/offset pair.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset query params, clamping the limit to
// [1, MaxLimit] with a default of DefaultLimit and the offset to >= 0.
// Unparseable values fall back to the defaults.
func FromContext(c echo.Context) Params {
	p := Params{Limit: DefaultLimit}

	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	if raw := c.QueryParam("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			p.Offset = n
		}
	}
	return p
}

// SQL renders the clause appended to list queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset)
}

// HasNext reports whether another page exists after this one.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious reports whether this is not the first page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset is the offset of the following page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset is the offset of the preceding page, floored at zero.
func (p Params) PreviousOffset() int {
	if prev := p.Offset - p.Limit; prev > 0 {
		return prev
	}
	return 0
}

// Response is the envelope returned by list endpoints.
type Response struct {
	Data    any  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

func NewResponse(data any, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}
