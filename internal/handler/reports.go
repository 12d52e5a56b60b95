package handler

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	"hydra-waf/internal/handler/response"
	"hydra-waf/internal/models"
	"hydra-waf/internal/store"
)

// ReportHandler serves patching reports and their CSV/PDF exports.
type ReportHandler struct {
	store *store.Store
}

func NewReportHandler(s *store.Store) *ReportHandler {
	return &ReportHandler{store: s}
}

func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	reports, err := h.store.ListReports(r.Context(), days)
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not list reports")
		return
	}
	response.JSONSuccess(w, map[string]interface{}{"reports": reports})
}

func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	response.JSONSuccess(w, report)
}

// Download exports one report; ?format=csv|pdf.
func (h *ReportHandler) Download(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	switch r.URL.Query().Get("format") {
	case "csv":
		h.downloadCSV(w, report)
	case "pdf":
		h.downloadPDF(w, report)
	default:
		response.JSONError(w, http.StatusBadRequest, "Format must be csv or pdf")
	}
}

func (h *ReportHandler) load(w http.ResponseWriter, r *http.Request) (*models.PatchingReport, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid report id")
		return nil, false
	}
	report, err := h.store.GetReport(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		response.JSONError(w, http.StatusNotFound, "Report not found")
		return nil, false
	}
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not load report")
		return nil, false
	}
	return report, true
}

func (h *ReportHandler) downloadCSV(w http.ResponseWriter, rep *models.PatchingReport) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="patching_report_%d.csv"`, rep.ReportID))

	analysis := parseDetails(rep.Details)

	cw := csv.NewWriter(w)
	cw.Write([]string{"field", "value"})
	cw.Write([]string{"report_id", strconv.FormatInt(rep.ReportID, 10)})
	cw.Write([]string{"created_at", rep.Timestamp.UTC().Format(time.RFC3339)})
	cw.Write([]string{"vulnerability", rep.Vulnerability})
	cw.Write([]string{"severity", rep.Severity})
	cw.Write([]string{"attack_type", analysis.AttackType})
	cw.Write([]string{"risk_level", analysis.RiskLevel})
	cw.Write([]string{"root_cause", analysis.RootCause})
	for _, m := range analysis.Mitigations {
		cw.Write([]string{"mitigation (" + m.Category + ")", m.Description})
	}
	for _, p := range analysis.VirtualPatches {
		cw.Write([]string{"virtual_patch (" + p.Target + ")", p.Rule})
	}
	for _, ref := range analysis.References {
		cw.Write([]string{"reference (" + ref.Standard + ")", ref.ID + " " + ref.Title})
	}
	cw.Flush()
}

func (h *ReportHandler) downloadPDF(w http.ResponseWriter, rep *models.PatchingReport) {
	analysis := parseDetails(rep.Details)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Patching Report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, fmt.Sprintf("Patching Report #%d", rep.ReportID))
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("%s  |  %s  |  severity %s",
		rep.Timestamp.UTC().Format("2006-01-02 15:04 UTC"), rep.Vulnerability, rep.Severity))
	pdf.Ln(10)

	section := func(title, body string) {
		if body == "" {
			return
		}
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, title)
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, body, "", "L", false)
		pdf.Ln(4)
	}

	section("Attack Type", analysis.AttackType+" ("+analysis.RiskLevel+" risk)")
	section("Root Cause", analysis.RootCause)
	for _, m := range analysis.Mitigations {
		section("Mitigation ["+m.Category+"]", m.Description)
	}
	for _, p := range analysis.VirtualPatches {
		section("Virtual Patch ["+p.Target+"]", p.Rule)
	}
	for _, ref := range analysis.References {
		section("Reference ["+ref.Standard+"]", ref.ID+" "+ref.Title)
	}
	if analysis.AttackType == "" {
		section("Details", rep.Details)
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="patching_report_%d.pdf"`, rep.ReportID))
	if err := pdf.Output(w); err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not render PDF")
	}
}

// parseDetails decodes the stored analysis JSON; malformed details yield a
// zero report and the raw text is exported instead.
func parseDetails(details string) models.AnalysisReport {
	var report models.AnalysisReport
	_ = json.Unmarshal([]byte(details), &report)
	return report
}
