package handlers

import (
	"github.com/eti-roma/verte-culture-connect-sub000/internal/middleware"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/services"

	"github.com/gofiber/fiber/v2"
)

// RecordHandler serves the domain tables under /records/<table>.
type RecordHandler struct {
	collections map[string]services.Collection
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(collections ...services.Collection) *RecordHandler {
	byName := make(map[string]services.Collection, len(collections))
	for _, col := range collections {
		byName[col.Name()] = col
	}
	return &RecordHandler{collections: byName}
}

// RegisterRoutes registers the record routes with the Fiber app.
func (h *RecordHandler) RegisterRoutes(router fiber.Router) {
	records := router.Group("/records")
	records.Get("/:table", h.HandleList)
	records.Post("/:table", h.HandleCreate)
}

func (h *RecordHandler) collection(c *fiber.Ctx) (services.Collection, error) {
	col, ok := h.collections[c.Params("table")]
	if !ok {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Table inconnue",
			"error":   "unknown table " + c.Params("table"),
		})
	}
	return col, nil
}

// HandleList lists rows. Query parameters other than order, limit and offset are
// equality filters.
func (h *RecordHandler) HandleList(c *fiber.Ctx) error {
	col, err := h.collection(c)
	if col == nil {
		return err
	}

	q := repositories.Query{
		OrderBy: c.Query("order"),
		Limit:   c.QueryInt("limit"),
		Offset:  c.QueryInt("offset"),
	}
	for key, value := range c.Queries() {
		switch key {
		case "order", "limit", "offset":
			continue
		}
		if q.Filters == nil {
			q.Filters = make(map[string]any)
		}
		q.Filters[key] = value
	}

	rows, err := col.ListRows(c.UserContext(), middleware.UserID(c), q)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rows)
}

// HandleCreate inserts a row owned by the caller.
func (h *RecordHandler) HandleCreate(c *fiber.Ctx) error {
	col, err := h.collection(c)
	if col == nil {
		return err
	}
	row, err := col.Create(c.UserContext(), middleware.UserID(c), c.BodyParser)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(row)
}
