package detectors

// DeepFashion2 class names
var deepFashion2Labels = map[int]string{
	0:  "short sleeved shirt",
	1:  "long sleeved shirt",
	2:  "short sleeved outwear",
	3:  "long sleeved outwear",
	4:  "vest",
	5:  "sling",
	6:  "shorts",
	7:  "trousers",
	8:  "skirt",
	9:  "short sleeved dress",
	10: "long sleeved dress",
	11: "vest dress",
	12: "sling dress",
}

// Fashionpedia category names, index is the class id
var fashionpediaCategories = []string{
	"shirt, blouse",
	"top, t-shirt, sweatshirt",
	"sweater",
	"cardigan",
	"jacket",
	"vest",
	"pants",
	"shorts",
	"skirt",
	"coat",
	"dress",
	"jumpsuit",
	"cape",
	"glasses",
	"hat",
	"headband, head covering, hair accessory",
	"tie",
	"glove",
	"watch",
	"belt",
	"leg warmer",
	"tights, stockings",
	"sock",
	"shoe",
	"bag, wallet",
	"scarf",
	"umbrella",
	"hood",
	"collar",
	"lapel",
	"epaulette",
	"sleeve",
	"pocket",
	"neckline",
	"buckle",
	"zipper",
	"applique",
	"bead",
	"bow",
	"flower",
	"fringe",
	"ribbon",
	"rivet",
	"ruffle",
	"sequin",
	"tassel",
}

// Fashionpedia ids 13 (glasses) through 26 (umbrella). Garments are left to the clothing model.
func accessoryIDs() map[int]bool {
	ids := make(map[int]bool, 14)
	for id := 13; id <= 26; id++ {
		ids[id] = true
	}
	return ids
}

func fashionpediaLabels() map[int]string {
	labels := make(map[int]string, len(fashionpediaCategories))
	for id, name := range fashionpediaCategories {
		labels[id] = name
	}
	return labels
}

// ClothingTable is the garment detector backed by a DeepFashion2 model.
func ClothingTable() Table {
	return Table{
		Name:     "clothing",
		Model:    "deepfashion2",
		Source:   "deepfashion2",
		Labels:   deepFashion2Labels,
		Fallback: "clothing",
		MinScore: 0.30,
		MinArea:  DefaultMinArea,
	}
}

// AccessoryTable is the accessory detector backed by a Fashionpedia model.
func AccessoryTable() Table {
	return Table{
		Name:     "accessory",
		Model:    "yolos-fashionpedia",
		Source:   "yolos_fashionpedia",
		Labels:   fashionpediaLabels(),
		Fallback: "accessory",
		Allow:    accessoryIDs(),
		MinScore: 0.50,
		MinArea:  DefaultMinArea,
	}
}

// NewClothing returns the garment detector
func NewClothing(proposer RegionProposer) *TableDetector {
	return NewTableDetector(ClothingTable(), proposer)
}

// NewAccessory returns the accessory detector
func NewAccessory(proposer RegionProposer) *TableDetector {
	return NewTableDetector(AccessoryTable(), proposer)
}
