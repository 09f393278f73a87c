package detection

// Category is the business classification of a post image.
type Category string

const (
	CategoryPromotional    Category = "promotional"
	CategoryProductDisplay Category = "product_display"
	CategoryLifestyle      Category = "lifestyle"
	CategoryOther          Category = "other"
)

// Categories lists every category in priority order.
var Categories = []Category{
	CategoryPromotional,
	CategoryProductDisplay,
	CategoryLifestyle,
	CategoryOther,
}

const personClass = "person"

// productClasses are the detector labels treated as a product on display.
var productClasses = map[string]struct{}{
	"bottle":     {},
	"cup":        {},
	"vase":       {},
	"handbag":    {},
	"cell phone": {},
	"laptop":     {},
}

// IsProductClass reports whether the detector label counts as a product.
func IsProductClass(name string) bool {
	_, ok := productClasses[name]
	return ok
}

// Classify maps the set of detected class names to a category. Duplicates and
// order do not matter; an empty set is CategoryOther.
func Classify(classNames []string) Category {
	var hasPerson, hasProduct bool
	for _, name := range classNames {
		if name == personClass {
			hasPerson = true
		} else if IsProductClass(name) {
			hasProduct = true
		}
	}
	switch {
	case hasPerson && hasProduct:
		return CategoryPromotional
	case hasProduct:
		return CategoryProductDisplay
	case hasPerson:
		return CategoryLifestyle
	default:
		return CategoryOther
	}
}

// ClassifyDetections classifies by the class names of the detections.
func ClassifyDetections(detections []Detection) Category {
	names := make([]string, len(detections))
	for i, d := range detections {
		names[i] = d.ClassName
	}
	return Classify(names)
}
