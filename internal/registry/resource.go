package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bgbm/dnastore/internal/apperr"
	"github.com/bgbm/dnastore/internal/db"
	"github.com/bgbm/dnastore/internal/scope"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// filterKind tells how a filter parameter is parsed.
type filterKind int

const (
	filterString filterKind = iota
	filterID
	filterBool
	filterDate
)

// filterField maps a query parameter to a column.
type filterField struct {
	field  string // JSON field name, used for visibility
	column string
	kind   filterKind
}

// searchField is one column matched by the free-text search. via wraps the
// LIKE expression when the column lives on a related table.
type searchField struct {
	field  string
	column string
	via    string
}

// descriptor holds everything that differs between registry entities.
type descriptor[T any] struct {
	entity   scope.Entity
	preload  []string
	search   []searchField
	filters  map[string]filterField
	ordering []string
	groupBy  []string
	dates    []string
	flags    []string
	refs     []string
	decimals []string
	aliases  map[string]string

	idOf         func(row *T) uint64
	extras       func(row *T) map[string]any
	check        func(row *T, fields apperr.FieldErrors)
	prepare      func(ctx context.Context, tx *gorm.DB, caller scope.Caller, row, before *T) error
	beforeDelete func(ctx context.Context, tx *gorm.DB, row *T) error
	duplicate    func(err error) error
}

// resource is the generic scoped CRUD implementation over one model.
type resource[T any] struct {
	db   *gorm.DB
	desc descriptor[T]
}

// Entity returns the entity served by r.
func (r *resource[T]) Entity() scope.Entity { return r.desc.entity }

// table returns the backing table name.
func (r *resource[T]) table() string { return r.desc.entity.Table() }

// column qualifies a column with the entity table.
func (r *resource[T]) column(name string) string { return r.table() + "." + name }

// scoped starts a query over the rows visible to caller.
func (r *resource[T]) scoped(ctx context.Context, conn *gorm.DB, caller scope.Caller) *gorm.DB {
	sc := scope.For(caller, r.desc.entity)
	return conn.WithContext(ctx).Model(new(T)).Scopes(sc.Filter)
}

// withPreload attaches the associations used by computed fields.
func (r *resource[T]) withPreload(q *gorm.DB) *gorm.DB {
	for _, assoc := range r.desc.preload {
		q = q.Preload(assoc)
	}
	return q
}

// List returns one page of rows visible to caller.
func (r *resource[T]) List(ctx context.Context, caller scope.Caller, q ListQuery) (*Page, error) {
	q = q.normalize()
	fields := scope.Projection(r.desc.entity, caller.Staff)

	conds, errConds := r.conditions(fields, q)
	if errConds != nil {
		return nil, errConds
	}
	build := func() *gorm.DB {
		query := r.scoped(ctx, r.db, caller)
		for _, cond := range conds {
			query = cond(query)
		}
		return query
	}

	var total int64
	if errCount := build().Count(&total).Error; errCount != nil {
		return nil, apperr.Internal("count "+r.table(), errCount)
	}

	order, errOrder := r.order(q.Ordering)
	if errOrder != nil {
		return nil, errOrder
	}
	var rows []T
	errFind := r.withPreload(build()).
		Order(order).
		Order(clause.OrderByColumn{Column: clause.Column{Table: r.table(), Name: "id"}, Desc: true}).
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&rows).Error
	if errFind != nil {
		return nil, apperr.Internal("list "+r.table(), errFind)
	}

	results, errRep := r.representAll(rows, fields)
	if errRep != nil {
		return nil, errRep
	}
	return &Page{Results: results, Count: total, Page: q.Page, Limit: q.Limit}, nil
}

// listBy returns every visible row whose column equals id, unpaged.
func (r *resource[T]) listBy(ctx context.Context, caller scope.Caller, column string, id uint64) ([]map[string]any, error) {
	fields := scope.Projection(r.desc.entity, caller.Staff)
	var rows []T
	errFind := r.withPreload(r.scoped(ctx, r.db, caller)).
		Where(r.column(column)+" = ?", id).
		Order(clause.OrderByColumn{Column: clause.Column{Table: r.table(), Name: "created_at"}, Desc: true}).
		Find(&rows).Error
	if errFind != nil {
		return nil, apperr.Internal("list "+r.table(), errFind)
	}
	return r.representAll(rows, fields)
}

// Get returns one visible row.
func (r *resource[T]) Get(ctx context.Context, caller scope.Caller, id uint64) (map[string]any, error) {
	row, errLoad := r.load(ctx, r.withPreload(r.scoped(ctx, r.db, caller)), id)
	if errLoad != nil {
		return nil, errLoad
	}
	return r.represent(row, scope.Projection(r.desc.entity, caller.Staff))
}

// load reads row id through q. Rows outside the caller scope are not found.
func (r *resource[T]) load(ctx context.Context, q *gorm.DB, id uint64) (*T, error) {
	var row T
	errFind := q.Where(r.column("id")+" = ?", id).First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "not found")
		}
		return nil, apperr.Internal("load "+r.table(), errFind)
	}
	return &row, nil
}

// Create validates body and inserts a new row.
func (r *resource[T]) Create(ctx context.Context, caller scope.Caller, body map[string]any) (map[string]any, error) {
	fields := scope.Projection(r.desc.entity, caller.Staff)
	var row T
	if errDecode := r.decode(fields, body, &row); errDecode != nil {
		return nil, errDecode
	}

	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.desc.prepare != nil {
			if errPrepare := r.desc.prepare(ctx, tx, caller, &row, nil); errPrepare != nil {
				return errPrepare
			}
		}
		if errCreate := tx.Omit(clause.Associations).Create(&row).Error; errCreate != nil {
			return r.translate(errCreate)
		}
		return nil
	})
	if errTx != nil {
		return nil, r.classify("create", errTx)
	}
	log.WithFields(log.Fields{"entity": r.table(), "id": r.desc.idOf(&row), "user_id": caller.UserID}).Info("registry: created")
	return r.Get(ctx, caller, r.desc.idOf(&row))
}

// Update applies the writable fields of body to a visible row. Absent fields keep their value.
func (r *resource[T]) Update(ctx context.Context, caller scope.Caller, id uint64, body map[string]any) (map[string]any, error) {
	fields := scope.Projection(r.desc.entity, caller.Staff)

	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, errLoad := r.load(ctx, r.scoped(ctx, tx, caller), id)
		if errLoad != nil {
			return errLoad
		}
		next, errClone := cloneRow(before)
		if errClone != nil {
			return apperr.Internal("clone "+r.table(), errClone)
		}
		if errDecode := r.decode(fields, body, next); errDecode != nil {
			return errDecode
		}
		if r.desc.prepare != nil {
			if errPrepare := r.desc.prepare(ctx, tx, caller, next, before); errPrepare != nil {
				return errPrepare
			}
		}
		if errSave := tx.Omit(clause.Associations).Save(next).Error; errSave != nil {
			return r.translate(errSave)
		}
		return nil
	})
	if errTx != nil {
		return nil, r.classify("update", errTx)
	}
	return r.Get(ctx, caller, id)
}

// Delete removes a visible row after the entity's dependency checks.
func (r *resource[T]) Delete(ctx context.Context, caller scope.Caller, id uint64) error {
	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, errLoad := r.load(ctx, r.scoped(ctx, tx, caller), id)
		if errLoad != nil {
			return errLoad
		}
		if r.desc.beforeDelete != nil {
			if errCheck := r.desc.beforeDelete(ctx, tx, row); errCheck != nil {
				return errCheck
			}
		}
		if errDelete := tx.Omit(clause.Associations).Delete(row).Error; errDelete != nil {
			if db.IsForeignKeyViolation(errDelete) {
				return apperr.New(apperr.KindValidation, "cannot delete: other records still reference this one")
			}
			return errDelete
		}
		return nil
	})
	if errTx != nil {
		return r.classify("delete", errTx)
	}
	log.WithFields(log.Fields{"entity": r.table(), "id": id, "user_id": caller.UserID}).Info("registry: deleted")
	return nil
}

// translate maps integrity errors raised by a write.
func (r *resource[T]) translate(err error) error {
	switch {
	case db.IsUniqueViolation(err):
		if r.desc.duplicate != nil {
			return r.desc.duplicate(err)
		}
		return apperr.Wrap(apperr.KindDuplicateResource, "record already exists", err)
	case db.IsForeignKeyViolation(err):
		return apperr.Field("non_field_errors", "referenced object does not exist")
	default:
		return err
	}
}

// classify wraps unclassified failures as internal errors.
func (r *resource[T]) classify(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal(fmt.Sprintf("%s %s", op, r.table()), err)
}

// conditions turns filters and search into query scopes.
func (r *resource[T]) conditions(fields scope.FieldSet, q ListQuery) ([]func(*gorm.DB) *gorm.DB, error) {
	var conds []func(*gorm.DB) *gorm.DB
	errs := apperr.FieldErrors{}

	for param, raw := range q.Filters {
		f, ok := r.desc.filters[param]
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" || !fields.CanSee(f.field) {
			continue
		}
		value, errParse := parseFilter(f.kind, raw)
		if errParse != nil {
			errs.Add(param, errParse.Error())
			continue
		}
		expr := r.column(f.column) + " = ?"
		conds = append(conds, func(query *gorm.DB) *gorm.DB { return query.Where(expr, value) })
	}
	if errFields := errs.Err(); errFields != nil {
		return nil, errFields
	}

	if term := strings.TrimSpace(q.Search); term != "" && len(r.desc.search) > 0 {
		conds = append(conds, func(query *gorm.DB) *gorm.DB {
			pattern := "%" + db.NormalizeLikePattern(query, term) + "%"
			exprs := make([]string, 0, len(r.desc.search))
			args := make([]any, 0, len(r.desc.search))
			for _, sf := range r.desc.search {
				if sf.field != "" && !fields.CanSee(sf.field) {
					continue
				}
				column := sf.column
				if !strings.Contains(column, ".") {
					column = r.column(column)
				}
				expr := db.CaseInsensitiveLikeExpr(query, column)
				if sf.via != "" {
					expr = fmt.Sprintf(sf.via, expr)
				}
				exprs = append(exprs, expr)
				args = append(args, pattern)
			}
			if len(exprs) == 0 {
				return query
			}
			return query.Where("("+strings.Join(exprs, " OR ")+")", args...)
		})
	}
	return conds, nil
}

// order resolves an ordering parameter such as "-created_at".
func (r *resource[T]) order(param string) (clause.OrderByColumn, error) {
	param = strings.TrimSpace(param)
	if param == "" {
		param = "-created_at"
	}
	desc := strings.HasPrefix(param, "-")
	name := strings.TrimPrefix(param, "-")
	for _, allowed := range r.desc.ordering {
		if allowed == name {
			return clause.OrderByColumn{Column: clause.Column{Table: r.table(), Name: name}, Desc: desc}, nil
		}
	}
	return clause.OrderByColumn{}, apperr.Field("ordering", "unsupported ordering field "+strconv.Quote(name))
}

// parseFilter converts a raw filter value.
func parseFilter(kind filterKind, raw string) (any, error) {
	switch kind {
	case filterID:
		id, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil || id == 0 {
			return nil, errors.New("enter a valid id")
		}
		return id, nil
	case filterBool:
		flag, ok := parseFlag(raw)
		if !ok {
			return nil, errors.New("enter a valid boolean")
		}
		return flag, nil
	case filterDate:
		day, errParse := parseDay(raw)
		if errParse != nil {
			return nil, errors.New("enter a valid date (YYYY-MM-DD)")
		}
		return datatypes.Date(day), nil
	default:
		return raw, nil
	}
}
