package routes

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/query"

	"github.com/labstack/echo/v4"
)

const (
	defaultGraphLimit = 100
	maxGraphLimit     = 500
)

// intParam parses an optional integer query parameter.
func intParam(c echo.Context, name string, def int) (int, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// GetGraphHandler returns up to limit entities and the relationships among
// them for visualization.
func GetGraphHandler(c echo.Context) error {
	type graphResponse struct {
		Nodes []common.Entity       `json:"nodes"`
		Edges []common.Relationship `json:"edges"`
		Stats common.GraphStats     `json:"stats"`
	}

	limit, ok := intParam(c, "limit", defaultGraphLimit)
	if !ok || limit < 1 || limit > maxGraphLimit {
		return badRequest(c, "limit must be between 1 and 500")
	}

	ctx := c.Request().Context()
	s := appFrom(c).Store
	sg, err := s.GraphData(ctx, limit)
	if err != nil {
		return writeError(c, err)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return writeError(c, err)
	}

	res := graphResponse{Nodes: sg.Nodes, Edges: sg.Edges, Stats: stats}
	if res.Nodes == nil {
		res.Nodes = []common.Entity{}
	}
	if res.Edges == nil {
		res.Edges = []common.Relationship{}
	}
	return c.JSON(http.StatusOK, res)
}

// GetEntityHandler returns an entity with its direct neighbours.
func GetEntityHandler(c echo.Context) error {
	details, err := appFrom(c).Engine.EntityDetails(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, details)
}

// GetPathHandler finds the shortest path between two entities. source_id
// and target_id are accepted as aliases.
func GetPathHandler(c echo.Context) error {
	source := c.QueryParam("source")
	if source == "" {
		source = c.QueryParam("source_id")
	}
	target := c.QueryParam("target")
	if target == "" {
		target = c.QueryParam("target_id")
	}
	depth, ok := intParam(c, "max_depth", query.DefaultPathDepth)
	if !ok {
		return badRequest(c, "max_depth must be a number")
	}

	res, err := appFrom(c).Engine.ShortestPath(c.Request().Context(), source, target, depth)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func GetGraphStatsHandler(c echo.Context) error {
	stats, err := appFrom(c).Store.Stats(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// GetEntityTypesHandler lists the entity types present in the graph with
// their counts.
func GetEntityTypesHandler(c echo.Context) error {
	type entityTypesResponse struct {
		Types  []string       `json:"types"`
		Counts map[string]int `json:"counts"`
	}

	counts, err := appFrom(c).Store.EntityTypeCounts(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	res := entityTypesResponse{Types: []string{}, Counts: make(map[string]int, len(counts))}
	for t, n := range counts {
		if n == 0 {
			continue
		}
		res.Types = append(res.Types, string(t))
		res.Counts[string(t)] = n
	}
	slices.Sort(res.Types)
	return c.JSON(http.StatusOK, res)
}
