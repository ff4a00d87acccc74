package config

// Borough is one of the alcaldías of Mexico City
type Borough struct {
	Name   string    `json:"name"`
	Center []float64 `json:"center"`
}

// SupportedBoroughs is the fixed catalogue used for per-borough statistics
var SupportedBoroughs = []Borough{
	{Name: "Álvaro Obregón", Center: []float64{19.3587, -99.2024}},
	{Name: "Azcapotzalco", Center: []float64{19.4869, -99.1848}},
	{Name: "Benito Juárez", Center: []float64{19.3727, -99.1566}},
	{Name: "Coyoacán", Center: []float64{19.3467, -99.1617}},
	{Name: "Cuajimalpa de Morelos", Center: []float64{19.3573, -99.2995}},
	{Name: "Cuauhtémoc", Center: []float64{19.4326, -99.1516}},
	{Name: "Gustavo A. Madero", Center: []float64{19.4823, -99.1130}},
	{Name: "Iztacalco", Center: []float64{19.3953, -99.0975}},
	{Name: "Iztapalapa", Center: []float64{19.3574, -99.0927}},
	{Name: "La Magdalena Contreras", Center: []float64{19.3331, -99.2435}},
	{Name: "Miguel Hidalgo", Center: []float64{19.4320, -99.2014}},
	{Name: "Milpa Alta", Center: []float64{19.1919, -99.0232}},
	{Name: "Tláhuac", Center: []float64{19.2866, -99.0049}},
	{Name: "Tlalpan", Center: []float64{19.2940, -99.1710}},
	{Name: "Venustiano Carranza", Center: []float64{19.4304, -99.0989}},
	{Name: "Xochimilco", Center: []float64{19.2572, -99.1030}},
}

// BoroughAliases maps the misspellings found in scraped listings to catalogue names
var BoroughAliases = map[string]string{
	"Alvaro Obregon":      "Álvaro Obregón",
	"Alvaro Obregón":      "Álvaro Obregón",
	"Coyoacan":            "Coyoacán",
	"Tlahuac":             "Tláhuac",
	"Magdalena Contreras": "La Magdalena Contreras",
	"Gustavo A Madero":    "Gustavo A. Madero",
	"Cuauhtemoc":          "Cuauhtémoc",
	"Benito Juarez":       "Benito Juárez",
}

// GetBoroughNames returns the catalogue names in order
func GetBoroughNames() []string {
	names := make([]string, len(SupportedBoroughs))
	for i, b := range SupportedBoroughs {
		names[i] = b.Name
	}
	return names
}

// GetBoroughByName returns a borough by exact name
func GetBoroughByName(name string) *Borough {
	for _, b := range SupportedBoroughs {
		if b.Name == name {
			return &b
		}
	}
	return nil
}

// CanonicalBorough resolves a known misspelling to its catalogue name.
// Unknown names are returned unchanged.
func CanonicalBorough(name string) string {
	if canonical, ok := BoroughAliases[name]; ok {
		return canonical
	}
	return name
}
