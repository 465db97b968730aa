package services_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/dedup"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/models"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/services"
	"github.com/google/uuid"
)

var _ = Describe("ReportQueryService", func() {
	var (
		ctx     context.Context
		reports *spyStore
		clock   *testClock
		intake  *services.ReportService
		query   *services.ReportQueryService
	)

	BeforeEach(func() {
		ctx = context.Background()
		reports = newSpyStore()
		clock = newTestClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
		intake = services.NewReportService(
			reports,
			dedup.NewResolver(reports, 0),
			nil,
			services.AttachmentLimits{},
			slog.New(slog.NewTextHandler(io.Discard, nil)),
			services.WithClock(clock.Now),
		)
		query = services.NewReportQueryService(reports)
	})

	submit := func(appID, description, priority string) *models.Report {
		res, err := intake.Submit(ctx, services.SubmitInput{AppID: appID, Description: description, Priority: priority})
		Expect(err).NotTo(HaveOccurred())
		clock.Advance(time.Second)
		return res.Report
	}

	Describe("List", func() {
		It("returns canonical reports only, newest first", func() {
			crash := submit("app1", "Crash on launch", models.PriorityHigh)
			submit("app1", "crash on launch", models.PriorityLow)
			freeze := submit("app1", "Checkout freezes", models.PriorityMedium)
			submit("app2", "Crash on launch", models.PriorityHigh)

			page, err := query.List(ctx, services.ListInput{AppID: "app1"})
			Expect(err).NotTo(HaveOccurred())

			Expect(page.Reports).To(HaveLen(2))
			Expect(page.Reports[0].ID).To(Equal(freeze.ID))
			Expect(page.Reports[1].ID).To(Equal(crash.ID))
			Expect(page.Reports[1].DuplicateCount).To(Equal(2))
			for _, r := range page.Reports {
				Expect(r.CanonicalID).To(BeNil())
				Expect(r.Status).NotTo(Equal(models.StatusDuplicate))
			}
			Expect(page.Limit).To(Equal(services.DefaultPageSize))
			Expect(page.HasMore).To(BeFalse())
		})

		It("filters by status and priority", func() {
			submit("app1", "Crash on launch", models.PriorityHigh)
			submit("app1", "Checkout freezes", models.PriorityMedium)

			page, err := query.List(ctx, services.ListInput{AppID: "app1", Priority: models.PriorityMedium})
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Reports).To(HaveLen(1))
			Expect(page.Reports[0].Description).To(Equal("Checkout freezes"))

			page, err = query.List(ctx, services.ListInput{AppID: "app1", Status: models.StatusResolved})
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Reports).To(BeEmpty())
		})

		It("pages with limit and offset", func() {
			for _, d := range []string{"First distinct issue", "Second distinct issue", "Third distinct issue"} {
				submit("app1", d, models.PriorityLow)
			}

			page, err := query.List(ctx, services.ListInput{AppID: "app1", Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Reports).To(HaveLen(2))
			Expect(page.HasMore).To(BeTrue())
			Expect(page.Reports[0].Description).To(Equal("Third distinct issue"))

			page, err = query.List(ctx, services.ListInput{AppID: "app1", Limit: 2, Offset: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Reports).To(HaveLen(1))
			Expect(page.HasMore).To(BeFalse())
			Expect(page.Reports[0].Description).To(Equal("First distinct issue"))
		})

		DescribeTable("clamps paging parameters",
			func(limit, offset, wantLimit, wantOffset int) {
				page, err := query.List(ctx, services.ListInput{AppID: "app1", Limit: limit, Offset: offset})
				Expect(err).NotTo(HaveOccurred())
				Expect(page.Limit).To(Equal(wantLimit))
				Expect(page.Offset).To(Equal(wantOffset))
			},
			Entry("zero limit", 0, 0, services.DefaultPageSize, 0),
			Entry("negative limit", -5, 0, services.DefaultPageSize, 0),
			Entry("limit above maximum", 1000, 0, services.MaxPageSize, 0),
			Entry("negative offset", 10, -3, 10, 0),
		)

		DescribeTable("rejects invalid filters",
			func(in services.ListInput) {
				_, err := query.List(ctx, in)
				Expect(services.IsValidation(err)).To(BeTrue())
			},
			Entry("missing app", services.ListInput{}),
			Entry("unknown status", services.ListInput{AppID: "app1", Status: "closed"}),
			Entry("unknown priority", services.ListInput{AppID: "app1", Priority: "urgent"}),
		)
	})

	Describe("Get", func() {
		It("returns a report of the app", func() {
			r := submit("app1", "Crash on launch", models.PriorityHigh)

			got, err := query.Get(ctx, "app1", r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Description).To(Equal("Crash on launch"))
		})

		It("hides reports of other apps", func() {
			r := submit("app1", "Crash on launch", models.PriorityHigh)

			_, err := query.Get(ctx, "app2", r.ID)
			Expect(err).To(MatchError(services.ErrReportNotFound))
		})
	})

	Describe("ListDuplicates", func() {
		It("returns the duplicates newest first", func() {
			canonical := submit("app1", "Crash on launch", models.PriorityHigh)
			older := submit("app1", "crash on launch", models.PriorityLow)
			newer := submit("app1", "CRASH on launch!", models.PriorityMedium)

			dups, err := query.ListDuplicates(ctx, "app1", canonical.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(dups).To(HaveLen(2))
			Expect(dups[0].ID).To(Equal(newer.ID))
			Expect(dups[1].ID).To(Equal(older.ID))
		})

		It("returns an empty list for a report without duplicates", func() {
			canonical := submit("app1", "Crash on launch", models.PriorityHigh)

			dups, err := query.ListDuplicates(ctx, "app1", canonical.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(dups).To(BeEmpty())
		})

		It("returns not found for an unknown report", func() {
			_, err := query.ListDuplicates(ctx, "app1", uuid.New())
			Expect(err).To(MatchError(services.ErrReportNotFound))
		})
	})

	Describe("Stats", func() {
		It("counts distinct issues with every bucket present", func() {
			submit("app1", "Crash on launch", models.PriorityHigh)
			submit("app1", "crash on launch", models.PriorityHigh)
			submit("app1", "Checkout freezes", models.PriorityLow)
			submit("app2", "Crash on launch", models.PriorityHigh)

			stats, err := query.Stats(ctx, "app1")
			Expect(err).NotTo(HaveOccurred())

			Expect(stats.Total).To(Equal(int64(2)))
			Expect(stats.ByPriority).To(Equal(map[string]int64{
				models.PriorityLow:    1,
				models.PriorityMedium: 0,
				models.PriorityHigh:   1,
			}))
			Expect(stats.ByStatus).To(HaveKeyWithValue(models.StatusOpen, int64(2)))
			Expect(stats.ByStatus).To(HaveKeyWithValue(models.StatusResolved, int64(0)))
			Expect(stats.ByStatus).NotTo(HaveKey(models.StatusDuplicate))
		})
	})
})
