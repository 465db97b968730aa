package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/attachments"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/dto"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/services"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/tenant"
	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ReportHandler struct {
	reports  *services.ReportService
	queries  *services.ReportQueryService
	registry *tenant.Registry
}

func NewReportHandler(reports *services.ReportService, queries *services.ReportQueryService, registry *tenant.Registry) *ReportHandler {
	return &ReportHandler{reports: reports, queries: queries, registry: registry}
}

// Submit handles POST /api/reports.
func (h *ReportHandler) Submit(c *fiber.Ctx) error {
	appID := tenant.GetAppID(c)

	var req dto.SubmitReportRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	images, err := h.readImages(c, appID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid image upload",
		})
	}

	res, err := h.reports.Submit(c.UserContext(), services.SubmitInput{
		AppID:       appID,
		UserID:      tenant.OptionalUserID(c),
		Description: req.Description,
		Priority:    req.Priority,
		ScreenName:  req.ScreenName,
		DeviceModel: req.DeviceModel,
		OSVersion:   req.OSVersion,
		AppVersion:  req.AppVersion,
		Images:      images,
	})
	if err != nil {
		return h.fail(c, "submit report", err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SubmitReportResponse{
		ID:              res.Report.ID,
		Status:          res.Report.Status,
		IsDuplicate:     res.IsDuplicate,
		CanonicalID:     res.CanonicalID,
		AttachmentCount: res.AttachmentCount,
	})
}

// List handles GET /api/admin/reports.
func (h *ReportHandler) List(c *fiber.Ctx) error {
	page, err := h.queries.List(c.UserContext(), services.ListInput{
		AppID:    tenant.GetAppID(c),
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Limit:    c.QueryInt("limit", 0),
		Offset:   c.QueryInt("offset", 0),
	})
	if err != nil {
		return h.fail(c, "list reports", err)
	}

	return c.JSON(dto.ReportListResponse{
		Reports: page.Reports,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: page.HasMore,
	})
}

// Get handles GET /api/admin/reports/:id.
func (h *ReportHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidID(c)
	}

	report, err := h.queries.Get(c.UserContext(), tenant.GetAppID(c), id)
	if err != nil {
		return h.fail(c, "get report", err)
	}
	return c.JSON(report)
}

// Duplicates handles GET /api/admin/reports/:id/duplicates.
func (h *ReportHandler) Duplicates(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidID(c)
	}

	dups, err := h.queries.ListDuplicates(c.UserContext(), tenant.GetAppID(c), id)
	if err != nil {
		return h.fail(c, "list duplicates", err)
	}
	return c.JSON(dto.DuplicatesResponse{
		CanonicalID: id,
		Count:       len(dups),
		Duplicates:  dups,
	})
}

// Update handles PATCH /api/admin/reports/:id.
func (h *ReportHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidID(c)
	}

	var req dto.UpdateReportRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	report, err := h.reports.Update(c.UserContext(), tenant.GetAppID(c), id, services.UpdateInput{
		Status:       req.Status,
		FixStatus:    req.FixStatus,
		SuggestedFix: req.SuggestedFix,
		Analysis:     req.Analysis,
	})
	if err != nil {
		return h.fail(c, "update report", err)
	}
	return c.JSON(report)
}

// Stats handles GET /api/admin/reports/stats.
func (h *ReportHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.queries.Stats(c.UserContext(), tenant.GetAppID(c))
	if err != nil {
		return h.fail(c, "report stats", err)
	}
	return c.JSON(dto.ReportStatsResponse{
		Total:      stats.Total,
		ByStatus:   stats.ByStatus,
		ByPriority: stats.ByPriority,
	})
}

// readImages collects the "images" parts of a multipart submission. Apps with
// attachments disabled have their images ignored.
func (h *ReportHandler) readImages(c *fiber.Ctx, appID string) ([]attachments.Image, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}
	files := form.File["images"]
	if len(files) == 0 || !h.registry.AttachmentsEnabled(appID) {
		return nil, nil
	}

	images := make([]attachments.Image, 0, len(files))
	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		images = append(images, attachments.Image{
			Data:        data,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
		})
	}
	return images, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// fail maps service errors onto the error envelope. Internal errors are
// logged and sent to Sentry; their detail never reaches the client.
func (h *ReportHandler) fail(c *fiber.Ctx, action string, err error) error {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: ve.Message,
		})
	case errors.Is(err, services.ErrReportNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "Report not found",
		})
	}

	appID := tenant.GetAppID(c)
	slog.ErrorContext(c.UserContext(), "report request failed",
		"app_id", appID,
		"action", action,
		"trace_id", c.GetRespHeader(fiber.HeaderXRequestID),
		"method", c.Method(),
		"path", c.Path(),
		"error", err.Error(),
	)
	if hub := sentryfiber.GetHubFromContext(c); hub != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("app_id", appID)
			scope.SetTag("action", action)
			hub.CaptureException(err)
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
		Error: true, Message: "Internal server error",
	})
}

func invalidID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error: true, Message: "Invalid report id",
	})
}
