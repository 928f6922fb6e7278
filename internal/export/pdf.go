package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

var scheduleTemplate = template.Must(template.New("schedule").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
	"formatDate": func(t time.Time) string {
		return t.Format("02/01/2006 15:04")
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Helvetica, Arial, sans-serif; color: #1e293b; }
h1 { font-size: 18px; }
p.meta { font-size: 10px; color: #64748b; }
table { width: 100%; border-collapse: collapse; font-size: 11px; }
th { background: #2980b9; color: #fff; text-align: left; padding: 6px; }
td { padding: 6px; border-bottom: 1px solid #e2e8f0; }
tr:nth-child(even) td { background: #f8fafc; }
</style>
</head>
<body>
<h1>Calendario de Actividades del Tribunal</h1>
<p class="meta">Generado el: {{ formatDate .GeneratedAt }}</p>
<table>
<thead><tr><th>Título</th><th>Unidad</th><th>Fecha/Hora</th><th>Tipo</th><th>Estado</th></tr></thead>
<tbody>
{{ range .Rows }}<tr><td>{{ .Title }}</td><td>{{ .Unit }}</td><td>{{ formatDate .StartTime }}</td><td>{{ upper .Type }}</td><td>{{ upper .Status }}</td></tr>
{{ end }}</tbody>
</table>
</body>
</html>`))

// ScheduleHTML renders the printable table. Split from PDF so tests can
// cover the document shape without a browser.
func ScheduleHTML(rows []Row) (string, error) {
	var buf bytes.Buffer
	err := scheduleTemplate.Execute(&buf, struct {
		GeneratedAt time.Time
		Rows        []Row
	}{time.Now(), rows})
	if err != nil {
		return "", fmt.Errorf("render schedule html: %w", err)
	}
	return buf.String(), nil
}

// PDF converts the schedule table to PDF using headless Chrome.
func PDF(rows []Row) (*Result, error) {
	html, err := ScheduleHTML(rows)
	if err != nil {
		return nil, err
	}

	if _, err := exec.LookPath("chromium-browser"); err != nil {
		if _, fallbackErr := exec.LookPath("chromium"); fallbackErr != nil {
			return nil, fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	// Data URLs need %20 for spaces, not the + that url.QueryEscape emits.
	dataURL := "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)

	var pdfData []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.5).
				WithPaperHeight(11.0).
				WithMarginTop(0.75).
				WithMarginBottom(0.75).
				WithMarginLeft(0.75).
				WithMarginRight(0.75).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}

	return &Result{
		Data:     pdfData,
		Filename: fmt.Sprintf("Calendario_Tribunal_%d.pdf", time.Now().Unix()),
		MimeType: "application/pdf",
	}, nil
}

func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			result.WriteRune(r)
		case r == ' ':
			result.WriteString("%20")
		default:
			for _, b := range []byte(string(r)) {
				result.WriteString(fmt.Sprintf("%%%02X", b))
			}
		}
	}
	return result.String()
}
