package printqueue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/shopspring/decimal"
)

// Renderer prints one ticket. Any error, or a panic, counts as a failed attempt.
type Renderer interface {
	Render(ctx context.Context, t Ticket) error
}

// TextRenderer writes fixed-width plain-text tickets into the directory the
// profile assigns to each print type. A spooler or printer bridge picks the
// files up from there.
type TextRenderer struct {
	profile Profile
	now     func() time.Time
}

func NewTextRenderer(profile Profile) *TextRenderer {
	if profile.Width == 0 {
		profile.Width = defaultWidth
	}
	return &TextRenderer{profile: profile, now: time.Now}
}

func (r *TextRenderer) Render(ctx context.Context, t Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := r.profile.outputFor(t.Type)
	if err != nil {
		return err
	}
	body := r.Format(t)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.txt", t.Type, t.JobID)
	tmp := filepath.Join(dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write ticket: %w", err)
	}
	// rename so a spooler never sees a half-written ticket
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish ticket: %w", err)
	}
	return nil
}

// Format lays the ticket out as text.
func (r *TextRenderer) Format(t Ticket) string {
	w := r.profile.Width
	var b strings.Builder
	rule := strings.Repeat("=", w)
	thin := strings.Repeat("-", w)

	line := func(s string) { b.WriteString(s); b.WriteByte('\n') }
	center := func(s string) {
		if pad := (w - len([]rune(s))) / 2; pad > 0 {
			s = strings.Repeat(" ", pad) + s
		}
		line(s)
	}
	columns := func(left, right string) {
		gap := w - len([]rune(left)) - len([]rune(right))
		if gap < 1 {
			gap = 1
		}
		line(left + strings.Repeat(" ", gap) + right)
	}

	for _, h := range r.profile.Header {
		center(h)
	}
	line(rule)

	switch t.Type {
	case database.PrintTypeTest:
		center("TEST PRINT")
		columns("Printer", t.Printer)
		columns("Time", r.now().Format("2006-01-02 15:04:05"))
		line(rule)
		return b.String()
	case database.PrintTypeComanda:
		title := "COMANDA"
		if t.Command != nil {
			title = fmt.Sprintf("COMANDA #%d", t.Command.CommandNumber)
		}
		center(title)
	case database.PrintTypePreconto:
		center("PRECONTO")
	}
	if t.TableNumber > 0 {
		columns(fmt.Sprintf("TABLE %d", t.TableNumber), fmt.Sprintf("COVERS %d", t.Covers))
	} else {
		line("TAKEAWAY")
	}
	line(r.now().Format("2006-01-02 15:04"))
	line(thin)

	course := int32(-1)
	for _, item := range t.Items {
		if t.Type == database.PrintTypeComanda && item.Course != course {
			course = item.Course
			line(fmt.Sprintf("-- course %d --", course))
		}
		label := fmt.Sprintf("%2d x %s", item.Quantity, item.ProductName)
		if t.Type == database.PrintTypePreconto {
			columns(label, database.NumericToDecimal(item.TotalPrice).StringFixed(2))
		} else {
			line(label)
		}
		if len(item.Flavors) > 0 {
			line("     " + strings.Join(item.Flavors, ", "))
		}
		if sups, err := database.DecodeSupplements(item.Supplements); err == nil {
			for _, s := range sups {
				line("     + " + s.Name)
			}
		}
		if item.CustomNote.Valid && item.CustomNote.String != "" {
			line("     ! " + item.CustomNote.String)
		}
	}

	if t.Type == database.PrintTypePreconto {
		line(thin)
		columns("Subtotal", t.Subtotal.StringFixed(2))
		if t.CoverCharge.GreaterThan(decimal.Zero) {
			columns(fmt.Sprintf("Cover charge x%d", t.Covers), t.CoverCharge.StringFixed(2))
		}
		columns("TOTAL", t.Total.StringFixed(2))
	}
	line(rule)
	for _, f := range r.profile.Footer {
		center(f)
	}
	return b.String()
}
