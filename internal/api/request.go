package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/dreamware/zboard/internal/widget"
)

const (
	defaultPage     = 0
	defaultPageSize = 10
	maxBodyBytes    = 1 << 20
)

// widgetRequest is the wire form of create and update commands
// Pointers tell a missing field from a zero one.
type widgetRequest struct {
	ZIndex *int `json:"zIndex"`
	X      *int `json:"x"`
	Y      *int `json:"y"`
	Width  *int `json:"width"`
	Height *int `json:"height"`
}

func (req widgetRequest) geometry() (widget.Geometry, error) {
	var errs []error
	required := func(name string, v *int) int {
		if v == nil {
			errs = append(errs, fmt.Errorf("%s is required", name))
			return 0
		}
		return *v
	}
	positive := func(name string, v *int) int {
		n := required(name, v)
		if v != nil && n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, n))
		}
		return n
	}

	g := widget.Geometry{
		X:      required("x", req.X),
		Y:      required("y", req.Y),
		Width:  positive("width", req.Width),
		Height: positive("height", req.Height),
	}
	if err := errors.Join(errs...); err != nil {
		return widget.Geometry{}, invalid(err)
	}
	return g, nil
}

func (req widgetRequest) create() (widget.CreateCommand, error) {
	g, err := req.geometry()
	return widget.CreateCommand{ZIndex: req.ZIndex, Geometry: g}, err
}

func (req widgetRequest) update() (widget.UpdateCommand, error) {
	g, err := req.geometry()
	return widget.UpdateCommand{ZIndex: req.ZIndex, Geometry: g}, err
}

// decode reads a JSON body into v
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return invalid(fmt.Errorf("malformed body: %w", err))
	}
	return nil
}

// pathID parses the {id} route variable
func pathID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalid(fmt.Errorf("invalid widget id %q", raw))
	}
	return id, nil
}

// pageParams reads ?page and ?pageSize, defaulting to the first ten widgets
func pageParams(q url.Values) (widget.Page, error) {
	page, err := intParam(q, "page", defaultPage)
	if err != nil {
		return widget.Page{}, err
	}
	size, err := intParam(q, "pageSize", defaultPageSize)
	if err != nil {
		return widget.Page{}, err
	}
	if page < 0 {
		return widget.Page{}, invalid(fmt.Errorf("page must not be negative, got %d", page))
	}
	if size < 1 {
		return widget.Page{}, invalid(fmt.Errorf("pageSize must be positive, got %d", size))
	}
	return widget.Page{Number: page, Size: size}, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid(fmt.Errorf("%s must be an integer, got %q", name, raw))
	}
	return n, nil
}
