package esim

import "fmt"

const (
	bytesPerGB = 1 << 30
	bytesPerMB = 1 << 20

	// priceScale converts provider prices to currency units.
	priceScale = 10000

	unknownPackageName = "Неизвестный тариф"
)

// FormatVolume renders a data allowance: "3.0 ГБ" from one gigabyte up, "500 МБ" below.
func FormatVolume(bytes int64) string {
	if bytes >= bytesPerGB {
		return fmt.Sprintf("%.1f ГБ", float64(bytes)/bytesPerGB)
	}
	return fmt.Sprintf("%.0f МБ", float64(bytes)/bytesPerMB)
}

// FormatDuration renders a validity period. Units other than DAY and MONTH
// are printed verbatim; plural forms are not adjusted.
func FormatDuration(n int, unit string) string {
	switch unit {
	case "DAY":
		return fmt.Sprintf("%d дней", n)
	case "MONTH":
		return fmt.Sprintf("%d месяцев", n)
	default:
		return fmt.Sprintf("%d %s", n, unit)
	}
}

// FormatPrice renders a provider price with two decimals, e.g. 1990000 -> "199.00".
func FormatPrice(price int64) string {
	return fmt.Sprintf("%.2f", float64(price)/priceScale)
}

// DisplayName returns the package name or a placeholder when the provider sent none.
func (p Package) DisplayName() string {
	if p.Name == "" {
		return unknownPackageName
	}
	return p.Name
}

// Label is the package button text: "name (volume, duration) - $price".
func (p Package) Label() string {
	return fmt.Sprintf("%s (%s, %s) - $%s",
		p.DisplayName(), FormatVolume(p.Volume), FormatDuration(p.Duration, p.DurationUnit), FormatPrice(p.Price))
}
