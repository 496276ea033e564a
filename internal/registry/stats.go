package registry

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/bgbm/dnastore/internal/apperr"
	"github.com/bgbm/dnastore/internal/scope"
)

// Stats counts visible rows grouped by one categorical field.
type Stats struct {
	GroupBy string  `json:"group_by"`
	Total   int64   `json:"total"`
	Groups  []Group `json:"groups"`
}

// Group is one bucket of a Stats result.
type Group struct {
	Value any   `json:"value"`
	Count int64 `json:"count"`
}

// Stats groups the rows visible to caller by groupBy.
func (r *resource[T]) Stats(ctx context.Context, caller scope.Caller, groupBy string) (*Stats, error) {
	groupBy = strings.TrimSpace(groupBy)
	fields := scope.Projection(r.desc.entity, caller.Staff)

	allowed := make([]string, 0, len(r.desc.groupBy))
	for _, name := range r.desc.groupBy {
		if fields.CanSee(name) {
			allowed = append(allowed, name)
		}
	}
	if !containsString(allowed, groupBy) {
		sort.Strings(allowed)
		return nil, apperr.Field("group_by", "choose one of: "+strings.Join(allowed, ", "))
	}

	column := r.column(groupBy)
	var rows []map[string]any
	errFind := r.scoped(ctx, r.db, caller).
		Select(column + " AS value, COUNT(*) AS n").
		Group(column).
		Order("n DESC").
		Order(column).
		Find(&rows).Error
	if errFind != nil {
		return nil, apperr.Internal("stats "+r.table(), errFind)
	}

	flag := containsString(r.desc.flags, groupBy)
	out := &Stats{GroupBy: groupBy, Groups: make([]Group, 0, len(rows))}
	for _, row := range rows {
		count := toInt64(row["n"])
		out.Total += count
		out.Groups = append(out.Groups, Group{Value: groupValue(row["value"], flag), Count: count})
	}
	return out, nil
}

// Summary is the per-entity row count visible to a caller.
type Summary struct {
	Requesters         int64 `json:"requesters"`
	Requests           int64 `json:"requests"`
	Metadata           int64 `json:"metadata"`
	Shipments          int64 `json:"shipments"`
	Tissues            int64 `json:"tissues"`
	DnaAliquots        int64 `json:"dna_aliquots"`
	TissuesShipped     int64 `json:"tissues_shipped"`
	DnaAliquotsShipped int64 `json:"dna_aliquots_shipped"`
}

// Summary counts every entity within the caller's scope.
func (s *Service) Summary(ctx context.Context, caller scope.Caller) (*Summary, error) {
	out := &Summary{}
	counts := []struct {
		entity  scope.Entity
		shipped bool
		dst     *int64
	}{
		{scope.Requesters, false, &out.Requesters},
		{scope.Requests, false, &out.Requests},
		{scope.Metadata, false, &out.Metadata},
		{scope.Shipments, false, &out.Shipments},
		{scope.Tissues, false, &out.Tissues},
		{scope.DnaAliquots, false, &out.DnaAliquots},
		{scope.Tissues, true, &out.TissuesShipped},
		{scope.DnaAliquots, true, &out.DnaAliquotsShipped},
	}
	for _, c := range counts {
		table := c.entity.Table()
		q := s.db.WithContext(ctx).Table(table).Scopes(scope.For(caller, c.entity).Filter)
		if c.shipped {
			q = q.Where(table + ".shipment_id IS NOT NULL")
		}
		if errCount := q.Count(c.dst).Error; errCount != nil {
			return nil, apperr.Internal("summary "+table, errCount)
		}
	}
	return out, nil
}

// groupValue normalizes driver-specific scan types.
func groupValue(v any, flag bool) any {
	switch t := v.(type) {
	case []byte:
		v = string(t)
	}
	if !flag {
		return v
	}
	switch t := v.(type) {
	case int64:
		return t != 0
	case string:
		if b, ok := parseFlag(t); ok {
			return b
		}
	}
	return v
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case uint64:
		return int64(t)
	case float64:
		return int64(t)
	case []byte:
		n, _ := strconv.ParseInt(string(t), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
