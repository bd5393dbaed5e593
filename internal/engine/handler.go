package engine

import (
	"encoding/json"
	"errors"
	"regexp"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"dbadmin/internal/codec"
	"dbadmin/internal/metadata"
	"dbadmin/internal/store"
)

// Handler is the JSON surface over the engine. One handler serves every
// registered table; nothing here is entity-specific.
type Handler struct {
	reg       *metadata.Registry
	mapper    *FieldMapper
	executor  *QueryExecutor
	projector *RecordProjector
	mutator   *RecordMutator
	basePath  string
	pageSize  int
	log       *zap.Logger
}

func NewHandler(reg *metadata.Registry, mapper *FieldMapper, executor *QueryExecutor, projector *RecordProjector, mutator *RecordMutator, basePath string, pageSize int, log *zap.Logger) *Handler {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Handler{
		reg:       reg,
		mapper:    mapper,
		executor:  executor,
		projector: projector,
		mutator:   mutator,
		basePath:  basePath,
		pageSize:  pageSize,
		log:       log,
	}
}

// Tables handles GET /table
func (h *Handler) Tables(c *fiber.Ctx) error {
	tables := h.reg.Tables()
	out := make([]fiber.Map, 0, len(tables))
	for _, t := range tables {
		display := t.Name
		if cfg := h.reg.Config(t.Name); cfg != nil && cfg.DisplayName != "" {
			display = cfg.DisplayName
		}
		out = append(out, fiber.Map{
			"name":         t.Name,
			"table":        t.Table,
			"display_name": display,
			"url":          h.basePath + "/" + t.Table,
		})
	}
	return c.JSON(fiber.Map{"tables": out})
}

// List handles GET /table/:table
func (h *Handler) List(c *fiber.Ctx) error {
	model, appErr := h.resolveTable(c)
	if appErr != nil {
		return respondError(c, appErr)
	}

	req := PageRequest{
		Filters:      h.buildFilters(c, model),
		Page:         c.QueryInt("page", 0),
		Size:         c.QueryInt("size", h.pageSize),
		SortField:    c.Query("sortField"),
		SortOrder:    c.Query("sortOrder"),
		NullsFirst:   c.QueryBool("nullsFirst", false),
		SortSupplied: c.Query("sortField") != "",
	}

	result, err := h.executor.Page(c.Context(), model, req)
	if err != nil {
		return err
	}

	records := make([]map[string]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		records = append(records, h.projector.Project(row, model, model.Fields))
	}

	return c.JSON(fiber.Map{
		"table":        model.Entity.Table,
		"fields":       model.Fields,
		"displayNames": model.DisplayNames,
		"fieldTypes":   model.TypeNames,
		"records":      records,
		"totalRecords": result.Total,
		"totalPages":   result.TotalPages,
		"currentPage":  req.Page,
		"pageSize":     req.Size,
		"sortField":    result.SortField,
		"sortOrder":    result.SortOrder,
		"nullsFirst":   result.NullsFirst,
	})
}

// Details handles GET /table/:table/:id and the edit-form variant.
func (h *Handler) Details(c *fiber.Ctx) error {
	model, appErr := h.resolveTable(c)
	if appErr != nil {
		return respondError(c, appErr)
	}
	id := c.Params("id")
	row, err := h.executor.Record(c.Context(), model, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(model.Entity.Table, id))
		}
		return err
	}
	return c.JSON(fiber.Map{
		"table":        model.Entity.Table,
		"fields":       model.AllFields,
		"displayNames": model.DisplayNames,
		"fieldTypes":   model.TypeNames,
		"record":       h.projector.Project(row, model, model.AllFields),
	})
}

// CreateForm handles GET /table/:table/create
func (h *Handler) CreateForm(c *fiber.Ctx) error {
	model, appErr := h.resolveTable(c)
	if appErr != nil {
		return respondError(c, appErr)
	}
	return c.JSON(fiber.Map{
		"table":        model.Entity.Table,
		"fields":       model.AllFields,
		"displayNames": model.DisplayNames,
		"fieldTypes":   model.TypeNames,
		"record":       h.projector.ProjectEmpty(model),
	})
}

// Create handles POST /table/:table/create
func (h *Handler) Create(c *fiber.Ctx) error {
	model, appErr := h.resolveTable(c)
	if appErr != nil {
		return respondError(c, appErr)
	}
	fields, err := parseFields(c)
	if err != nil {
		return err
	}
	if errs := h.mutator.Validate(model, fields, true); len(errs) > 0 {
		return respondError(c, ValidationError(errs))
	}
	id, err := h.mutator.Create(c.Context(), model, fields)
	if err != nil {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return respondError(c, appErr)
		}
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":  id,
		"url": c.Path()[:len(c.Path())-len("/create")] + "/" + toString(id),
	})
}

// Update handles POST /table/:table/:id/edit
func (h *Handler) Update(c *fiber.Ctx) error {
	model, appErr := h.resolveTable(c)
	if appErr != nil {
		return respondError(c, appErr)
	}
	fields, err := parseFields(c)
	if err != nil {
		return err
	}
	if errs := h.mutator.Validate(model, fields, false); len(errs) > 0 {
		return respondError(c, ValidationError(errs))
	}
	id := c.Params("id")
	if err := h.mutator.Update(c.Context(), model, id, fields); err != nil {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return respondError(c, appErr)
		}
		return err
	}
	return c.JSON(fiber.Map{"id": id, "status": "updated"})
}

func (h *Handler) resolveTable(c *fiber.Ctx) (*FieldModel, *AppError) {
	name := c.Params("table")
	entity := h.reg.Table(name)
	if entity == nil {
		return nil, UnknownTableError(name)
	}
	return h.mapper.MapFields(entity), nil
}

var integerPattern = regexp.MustCompile(`^-?\d+$`)

// buildFilters assembles filter clauses from the parallel query
// parameter lists. Missing entries take defaults: equals, empty value,
// allow-null on, treat-empty off. Obviously non-numeric equality
// values on integer fields are dropped here so they never reach SQL.
func (h *Handler) buildFilters(c *fiber.Ctx, model *FieldModel) []FilterClause {
	args := c.Context().QueryArgs()
	fields := args.PeekMulti("filterField")
	ops := args.PeekMulti("filterOperation")
	values := args.PeekMulti("filterValue")
	allowNulls := args.PeekMulti("allowNull")
	treatEmpties := args.PeekMulti("treatEmptyAsEmptyString")

	at := func(list [][]byte, i int, fallback string) string {
		if i < len(list) {
			return string(list[i])
		}
		return fallback
	}

	var clauses []FilterClause
	for i := range fields {
		clause := FilterClause{
			Field:      string(fields[i]),
			Operation:  at(ops, i, OpEquals),
			Value:      at(values, i, ""),
			AllowNull:  at(allowNulls, i, "true") == "true",
			TreatEmpty: at(treatEmpties, i, "false") == "true",
		}
		if clause.Field == "" {
			continue
		}
		if clause.Operation == OpEquals &&
			model.Kinds[clause.Field].IsInteger() &&
			!codec.IsNullToken(clause.Value) &&
			!integerPattern.MatchString(clause.Value) {
			h.log.Warn("non-numeric equality value on integer field dropped",
				zap.String("field", clause.Field), zap.String("value", clause.Value))
			continue
		}
		clauses = append(clauses, clause)
	}
	return clauses
}

// parseFields reads the posted record: a flat JSON object, or a
// form-encoded body.
func parseFields(c *fiber.Ctx) (map[string]string, error) {
	fields := make(map[string]string)
	if c.Is("json") {
		var raw map[string]any
		if err := json.Unmarshal(c.Body(), &raw); err != nil {
			return nil, &AppError{Code: "BAD_REQUEST", Status: 400, Message: "Malformed JSON body"}
		}
		for k, v := range raw {
			if v == nil {
				fields[k] = ""
				continue
			}
			fields[k] = toString(v)
		}
		return fields, nil
	}
	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		fields[string(key)] = string(value)
	})
	return fields, nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}
