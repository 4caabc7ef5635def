package extract

// The classifier is constrained to a fixed taxonomy; free-form labels from
// the model are rejected at parse time.

var documentTypes = []string{
	"equipment_plate",
	"receipt",
	"manual",
	"warranty",
	"invoice",
	"product_photo",
	"other",
}

var homeCategories = []string{
	"hvac",
	"plumbing",
	"electrical",
	"appliance",
	"roofing",
	"water_heater",
	"security",
	"landscaping",
	"pool_spa",
	"flooring",
	"windows_doors",
	"furniture",
	"electronics",
	"other",
}
