package renderer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/thereceipt/order-printer/internal/orders"
)

// Render builds the receipt text for an order.
func (r *Renderer) Render(o orders.Order) string {
	var b strings.Builder

	heavy := strings.Repeat("=", Columns)
	light := strings.Repeat("-", Columns)

	ts := r.now()
	if o.CreatedAt != nil {
		ts = o.CreatedAt.Local()
	}

	b.WriteString(heavy + "\n")
	b.WriteString(center(strings.ToUpper(r.restaurantName)) + "\n")
	b.WriteString(heavy + "\n")
	fmt.Fprintf(&b, "PEDIDO #%d\n", o.ID)
	fmt.Fprintf(&b, "Data: %s\n", ts.Format("02/01/2006 15:04"))
	b.WriteString(light + "\n")
	fmt.Fprintf(&b, "Cliente: %s\n", orPlaceholder(o.CustomerName))
	fmt.Fprintf(&b, "Telefone: %s\n", orPlaceholder(o.Phone))
	fmt.Fprintf(&b, "Endereço: %s\n", orPlaceholder(o.Address))
	b.WriteString(light + "\n")
	b.WriteString("ITENS:\n")
	switch {
	case len(o.Items) > 0:
		for _, item := range o.Items {
			b.WriteString(itemLine(item) + "\n")
		}
	case strings.TrimSpace(o.ItemsText) != "":
		for _, line := range strings.Split(strings.TrimSpace(o.ItemsText), "\n") {
			b.WriteString(strings.TrimSpace(line) + "\n")
		}
	default:
		b.WriteString(Placeholder + "\n")
	}
	b.WriteString(light + "\n")
	if notes := strings.TrimSpace(o.Notes); notes != "" {
		fmt.Fprintf(&b, "Observações: %s\n", notes)
	}
	fmt.Fprintf(&b, "Pagamento: %s\n", orPlaceholder(o.PaymentMethod))
	if o.DeliveryFee != nil {
		b.WriteString(columns("Taxa de entrega:", FormatMoney(*o.DeliveryFee)) + "\n")
	}
	b.WriteString(columns("TOTAL:", FormatMoney(o.Total)) + "\n")
	b.WriteString(heavy + "\n")
	b.WriteString(center("Obrigado pela preferência!") + "\n")
	b.WriteString(heavy + "\n")

	return b.String()
}

// FormatMoney renders a value as Brazilian reais, e.g. "R$ 1.234,50".
func FormatMoney(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	cents := int64(math.Round(v * 100))
	whole := strconv.FormatInt(cents/100, 10)

	var grouped strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(c)
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, grouped.String(), cents%100)
}

func itemLine(item orders.Item) string {
	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}
	name := item.Name
	if strings.TrimSpace(name) == "" {
		name = Placeholder
	}
	return columns(fmt.Sprintf("%dx %s", qty, name), FormatMoney(item.LineTotal()))
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return strings.TrimSpace(s)
}

// columns left-aligns label and right-aligns value on one line, wrapping the
// value onto its own line when both do not fit.
func columns(label, value string) string {
	gap := Columns - utf8.RuneCountInString(label) - utf8.RuneCountInString(value)
	if gap < 1 {
		return label + "\n" + strings.Repeat(" ", max(0, Columns-utf8.RuneCountInString(value))) + value
	}
	return label + strings.Repeat(" ", gap) + value
}

func center(s string) string {
	pad := (Columns - utf8.RuneCountInString(s)) / 2
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad) + s
}

// RenderTest builds the canned page used to check a printer.
func (r *Renderer) RenderTest(printerName string) string {
	var b strings.Builder
	heavy := strings.Repeat("=", Columns)

	b.WriteString(heavy + "\n")
	b.WriteString(center("TESTE DE IMPRESSÃO") + "\n")
	b.WriteString(heavy + "\n")
	fmt.Fprintf(&b, "Restaurante: %s\n", r.restaurantName)
	fmt.Fprintf(&b, "Impressora: %s\n", orPlaceholder(printerName))
	fmt.Fprintf(&b, "Data: %s\n", r.now().Format("02/01/2006 15:04:05"))
	b.WriteString(strings.Repeat("-", Columns) + "\n")
	b.WriteString("Acentuação: áéíóú ãõ ç\n")
	b.WriteString(columns("Valor:", FormatMoney(1234.5)) + "\n")
	b.WriteString(heavy + "\n")
	return b.String()
}
