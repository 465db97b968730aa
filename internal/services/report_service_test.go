package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/attachments"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/dedup"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/models"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/services"
	"github.com/google/uuid"
)

var _ = Describe("ReportService", func() {
	var (
		ctx     context.Context
		reports *spyStore
		uploads *fakeUploads
		clock   *testClock
		svc     *services.ReportService
		logger  *slog.Logger
	)

	newService := func(up attachments.Store) *services.ReportService {
		return services.NewReportService(
			reports,
			dedup.NewResolver(reports, dedup.DefaultWindow),
			up,
			services.AttachmentLimits{MaxCount: 3, MaxBytes: 16},
			logger,
			services.WithClock(clock.Now),
		)
	}

	BeforeEach(func() {
		ctx = context.Background()
		reports = newSpyStore()
		uploads = &fakeUploads{}
		clock = newTestClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		svc = newService(uploads)
	})

	submit := func(appID, description, priority string) *services.SubmitResult {
		res, err := svc.Submit(ctx, services.SubmitInput{AppID: appID, Description: description, Priority: priority})
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	canonicalCount := func(appID string, id uuid.UUID) int {
		r, err := reports.GetByID(ctx, appID, id)
		Expect(err).NotTo(HaveOccurred())
		return r.DuplicateCount
	}

	Describe("Submit", func() {
		It("creates an open canonical report for a new issue", func() {
			res := submit("app1", "Crash on launch!!", models.PriorityHigh)

			Expect(res.IsDuplicate).To(BeFalse())
			Expect(res.CanonicalID).To(BeNil())
			Expect(res.Report.Status).To(Equal(models.StatusOpen))
			Expect(res.Report.DuplicateCount).To(Equal(1))
			Expect(res.Report.Fingerprint).To(Equal(dedup.Fingerprint("app1", "Crash on launch!!", "")))
			Expect(res.Report.CreatedAt).To(Equal(clock.Now()))
		})

		It("links a matching report to the existing canonical and counts it", func() {
			first := submit("app1", "Crash on launch!!", models.PriorityHigh)
			second := submit("app1", "crash on launch", models.PriorityLow)

			Expect(second.IsDuplicate).To(BeTrue())
			Expect(second.CanonicalID).NotTo(BeNil())
			Expect(*second.CanonicalID).To(Equal(first.Report.ID))
			Expect(second.Report.Status).To(Equal(models.StatusDuplicate))
			Expect(second.Report.DuplicateCount).To(BeZero())
			Expect(second.Report.Priority).To(Equal(models.PriorityLow))
			Expect(canonicalCount("app1", first.Report.ID)).To(Equal(2))
		})

		It("never matches across apps", func() {
			first := submit("app1", "Crash on launch", models.PriorityHigh)
			other := submit("app2", "Crash on launch", models.PriorityHigh)

			Expect(other.IsDuplicate).To(BeFalse())
			Expect(other.Report.ID).NotTo(Equal(first.Report.ID))
			Expect(canonicalCount("app1", first.Report.ID)).To(Equal(1))
		})

		It("treats the screen name as part of the issue identity", func() {
			submit("app1", "Button does nothing", models.PriorityMedium)
			res, err := svc.Submit(ctx, services.SubmitInput{
				AppID: "app1", Description: "Button does nothing", Priority: models.PriorityMedium, ScreenName: "  Settings ",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsDuplicate).To(BeFalse())
			Expect(res.Report.ScreenName).NotTo(BeNil())
			Expect(*res.Report.ScreenName).To(Equal("Settings"))
		})

		It("fingerprints the screen name as submitted and stores it trimmed", func() {
			padded, err := svc.Submit(ctx, services.SubmitInput{
				AppID: "app1", Description: "Toggle resets", Priority: models.PriorityLow, ScreenName: " Settings",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(padded.Report.Fingerprint).To(Equal(dedup.Fingerprint("app1", "Toggle resets", " Settings")))
			Expect(*padded.Report.ScreenName).To(Equal("Settings"))

			plain, err := svc.Submit(ctx, services.SubmitInput{
				AppID: "app1", Description: "Toggle resets", Priority: models.PriorityLow, ScreenName: "Settings",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(plain.IsDuplicate).To(BeFalse())
			Expect(plain.Report.Fingerprint).NotTo(Equal(padded.Report.Fingerprint))
		})

		It("still matches on the last instant of the window", func() {
			first := submit("app1", "Login spinner never stops", models.PriorityMedium)
			clock.Advance(dedup.DefaultWindow)

			res := submit("app1", "login spinner never stops", models.PriorityMedium)
			Expect(res.IsDuplicate).To(BeTrue())
			Expect(*res.CanonicalID).To(Equal(first.Report.ID))
		})

		It("starts a new canonical once the window has passed", func() {
			first := submit("app1", "Login spinner never stops", models.PriorityMedium)
			clock.Advance(dedup.DefaultWindow + time.Second)

			res := submit("app1", "Login spinner never stops", models.PriorityMedium)
			Expect(res.IsDuplicate).To(BeFalse())

			clock.Advance(time.Minute)
			again := submit("app1", "Login spinner never stops", models.PriorityMedium)
			Expect(*again.CanonicalID).To(Equal(res.Report.ID))
			Expect(canonicalCount("app1", first.Report.ID)).To(Equal(1))
		})

		It("conserves the count over sequential submissions", func() {
			const n = 7
			var canonicalID uuid.UUID
			for i := 0; i < n; i++ {
				res := submit("app1", "Video stutters on playback", models.PriorityLow)
				if i == 0 {
					canonicalID = res.Report.ID
				} else {
					Expect(*res.CanonicalID).To(Equal(canonicalID))
				}
				clock.Advance(time.Minute)
			}

			dups, err := reports.ListDuplicates(ctx, "app1", canonicalID)
			Expect(err).NotTo(HaveOccurred())
			Expect(dups).To(HaveLen(n - 1))
			Expect(canonicalCount("app1", canonicalID)).To(Equal(n))
		})

		It("conserves the count under concurrent duplicates", func() {
			first := submit("app1", "Checkout freezes", models.PriorityHigh)

			const n = 40
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					res, err := svc.Submit(ctx, services.SubmitInput{AppID: "app1", Description: "checkout freezes", Priority: models.PriorityHigh})
					if err != nil {
						errs <- err
						return
					}
					if res.CanonicalID == nil || *res.CanonicalID != first.Report.ID {
						errs <- errors.New("duplicate linked to the wrong canonical")
					}
				}()
			}
			wg.Wait()
			close(errs)
			Expect(errs).To(BeEmpty())

			dups, err := reports.ListDuplicates(ctx, "app1", first.Report.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(dups).To(HaveLen(n))
			Expect(canonicalCount("app1", first.Report.ID)).To(Equal(n + 1))
		})

		DescribeTable("rejects invalid input without writing",
			func(in services.SubmitInput, field string) {
				_, err := svc.Submit(ctx, in)

				var ve *services.ValidationError
				Expect(errors.As(err, &ve)).To(BeTrue())
				Expect(ve.Field).To(Equal(field))
				Expect(reports.writes()).To(BeZero())
				Expect(uploads.calls).To(BeZero())
			},
			Entry("missing app", services.SubmitInput{Description: "Crash on launch", Priority: "high"}, "app_id"),
			Entry("short description", services.SubmitInput{AppID: "app1", Description: "  abcd  ", Priority: "high"}, "description"),
			Entry("unknown priority", services.SubmitInput{AppID: "app1", Description: "Crash on launch", Priority: "urgent"}, "priority"),
			Entry("too many images", services.SubmitInput{AppID: "app1", Description: "Crash on launch", Priority: "high",
				Images: []attachments.Image{png("a"), png("b"), png("c"), png("d")}}, "images"),
			Entry("oversized image", services.SubmitInput{AppID: "app1", Description: "Crash on launch", Priority: "high",
				Images: []attachments.Image{png("this payload is too large")}}, "images"),
			Entry("empty image", services.SubmitInput{AppID: "app1", Description: "Crash on launch", Priority: "high",
				Images: []attachments.Image{{ContentType: "image/png"}}}, "images"),
			Entry("unsupported image", services.SubmitInput{AppID: "app1", Description: "Crash on launch", Priority: "high",
				Images: []attachments.Image{{Data: []byte("pdf"), ContentType: "application/pdf"}}}, "images"),
		)

		It("keeps the successful uploads in order and drops failed ones", func() {
			res, err := svc.Submit(ctx, services.SubmitInput{
				AppID: "app1", Description: "Map tiles are blank", Priority: models.PriorityMedium,
				Images: []attachments.Image{png("one"), png("broken"), png("three")},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(res.AttachmentCount).To(Equal(2))
			Expect([]string(res.Report.ImageURLs)).To(Equal([]string{
				"https://cdn.test/app1/one",
				"https://cdn.test/app1/three",
			}))
			Expect(res.Report.ImageURL).NotTo(BeNil())
			Expect(*res.Report.ImageURL).To(Equal("https://cdn.test/app1/one"))
			Expect(uploads.calls).To(Equal(3))
		})

		It("stores the report when every upload fails", func() {
			res, err := svc.Submit(ctx, services.SubmitInput{
				AppID: "app1", Description: "Map tiles are blank", Priority: models.PriorityMedium,
				Images: []attachments.Image{png("broken")},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.AttachmentCount).To(BeZero())
			Expect(res.Report.ImageURL).To(BeNil())
		})

		It("ignores images when attachments are disabled", func() {
			svc = newService(nil)
			res, err := svc.Submit(ctx, services.SubmitInput{
				AppID: "app1", Description: "Map tiles are blank", Priority: models.PriorityMedium,
				Images: []attachments.Image{png("a"), png("b"), png("c"), png("d")},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.AttachmentCount).To(BeZero())
			Expect(uploads.calls).To(BeZero())
		})

		It("fails without storing when resolution fails", func() {
			reports.findErr = errors.New("connection reset")

			_, err := svc.Submit(ctx, services.SubmitInput{AppID: "app1", Description: "Crash on launch", Priority: "high"})
			Expect(err).To(MatchError(ContainSubstring("connection reset")))
			Expect(services.IsValidation(err)).To(BeFalse())
			Expect(reports.writes()).To(BeZero())
		})

		It("surfaces a failed count increment", func() {
			submit("app1", "Crash on launch", models.PriorityHigh)
			reports.incrementErr = errors.New("deadlock detected")

			_, err := svc.Submit(ctx, services.SubmitInput{AppID: "app1", Description: "crash on launch", Priority: "high"})
			Expect(err).To(MatchError(ContainSubstring("deadlock detected")))
			Expect(reports.increments).To(Equal(1))
		})
	})

	Describe("Update", func() {
		var report *models.Report

		BeforeEach(func() {
			report = submit("app1", "Crash on launch", models.PriorityHigh).Report
		})

		It("sets classification fields", func() {
			status := models.StatusInProgress
			fix := models.FixStatusPending
			suggestion := "Guard the nil session"

			updated, err := svc.Update(ctx, "app1", report.ID, services.UpdateInput{
				Status:       &status,
				FixStatus:    &fix,
				SuggestedFix: &suggestion,
				Analysis:     json.RawMessage(`{"cause":"nil session"}`),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(status))
			Expect(*updated.FixStatus).To(Equal(fix))
			Expect(*updated.SuggestedFix).To(Equal(suggestion))
			Expect(string(updated.Analysis)).To(MatchJSON(`{"cause":"nil session"}`))
			Expect(updated.Fingerprint).To(Equal(report.Fingerprint))
			Expect(updated.DuplicateCount).To(Equal(1))
		})

		It("rejects an empty update without writing", func() {
			before := reports.writes()

			_, err := svc.Update(ctx, "app1", report.ID, services.UpdateInput{})
			Expect(services.IsValidation(err)).To(BeTrue())
			Expect(reports.writes()).To(Equal(before))
		})

		DescribeTable("rejects invalid values",
			func(in services.UpdateInput) {
				_, err := svc.Update(ctx, "app1", report.ID, in)
				Expect(services.IsValidation(err)).To(BeTrue())
			},
			Entry("unknown status", services.UpdateInput{Status: ptr("closed")}),
			Entry("duplicate status", services.UpdateInput{Status: ptr(models.StatusDuplicate)}),
			Entry("unknown fix status", services.UpdateInput{FixStatus: ptr("shipped")}),
			Entry("malformed analysis", services.UpdateInput{Analysis: json.RawMessage(`{"cause":`)}),
		)

		It("returns not found for an unknown id", func() {
			_, err := svc.Update(ctx, "app1", uuid.New(), services.UpdateInput{Status: ptr(models.StatusResolved)})
			Expect(err).To(MatchError(services.ErrReportNotFound))
		})

		It("returns not found for another app's report", func() {
			_, err := svc.Update(ctx, "app2", report.ID, services.UpdateInput{Status: ptr(models.StatusResolved)})
			Expect(err).To(MatchError(services.ErrReportNotFound))

			unchanged, err := reports.GetByID(ctx, "app1", report.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(unchanged.Status).To(Equal(models.StatusOpen))
		})

		It("keeps a resolved canonical as the match target", func() {
			_, err := svc.Update(ctx, "app1", report.ID, services.UpdateInput{Status: ptr(models.StatusResolved)})
			Expect(err).NotTo(HaveOccurred())

			res := submit("app1", "crash on launch", models.PriorityLow)
			Expect(*res.CanonicalID).To(Equal(report.ID))
		})
	})
})

func ptr[T any](v T) *T {
	return &v
}
