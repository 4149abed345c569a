// units.go - Unit of measure canonicalisation for invoice lines

package processor

import "strings"

var unitAliases = map[string]string{
	// countable
	"шт": "шт", "штук": "шт", "штука": "шт", "штуки": "шт",
	"pcs": "шт", "pc": "шт", "piece": "шт", "pieces": "шт", "ea": "шт", "btl": "шт", "бут": "шт",
	"уп": "уп", "упак": "уп", "упаковка": "уп", "пач": "уп", "пачка": "уп",
	"pack": "уп", "package": "уп", "pkg": "уп",
	"кор": "кор", "коробка": "кор", "ящ": "кор", "ящик": "кор", "box": "кор", "boxes": "кор",

	// weight
	"кг": "кг", "килограмм": "кг", "кило": "кг",
	"kg": "кг", "kilo": "кг", "kilogram": "кг", "kilograms": "кг",
	"г": "г", "гр": "г", "грамм": "г",
	"g": "г", "gr": "г", "gram": "г", "grams": "г",

	// volume
	"л": "л", "литр": "л", "литра": "л", "литров": "л",
	"l": "л", "lt": "л", "ltr": "л", "liter": "л", "liters": "л", "litre": "л", "litres": "л",
	"мл": "мл", "миллилитр": "мл",
	"ml": "мл", "milliliter": "мл", "milliliters": "мл", "millilitre": "мл", "millilitres": "мл",
}

var unitFactors = map[[2]string]float64{
	{"мл", "л"}: 0.001,
	{"л", "мл"}: 1000,
	{"г", "кг"}: 0.001,
	{"кг", "г"}: 1000,
}

// NormalizeUnit maps "Кг.", "kilogram" and friends onto one symbol; unknown units are returned lowercased
func NormalizeUnit(unit string) string {
	u := strings.TrimRight(strings.ToLower(strings.TrimSpace(unit)), ".")
	if canonical, ok := unitAliases[u]; ok {
		return canonical
	}
	return u
}

// ConvertUnit converts value between compatible units
func ConvertUnit(value float64, from, to string) (float64, bool) {
	from, to = NormalizeUnit(from), NormalizeUnit(to)
	if from == to {
		return value, true
	}
	if f, ok := unitFactors[[2]string{from, to}]; ok {
		return value * f, true
	}
	return 0, false
}
