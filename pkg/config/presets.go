package config

// defaultPromptPrefix is the instructional prefix the NetaYume checkpoint
// expects ahead of the actual prompt text.
const defaultPromptPrefix = "You are an assistant designed to generate high quality anime images based on textual prompts. <Prompt Start> "

var defaultArtistTags = []string{
	"@0202ase",
	"@0002koko",
	"@00kashian00",
	"@0930erina",
	"@0jae",
	"@1=2",
	"@122pxsheol",
	"@159cm",
	"@200f_(nifu)",
	"@218",
	"@2dswirl",
	"@2zuz4hru",
	"@33_gaff",
	"@40hara",
	"@547th_sy",
	"@4b-enpitsu",
	"@987645321o",
	"@a.nori",
	"@abbystea",
	"@abi_(abimel10)",
	"@abpart",
	"@abutomato",
	"@acubi_tomaranai",
	"@adelheid_(moschiola)",
	"@adarin",
	"@adsouto",
	"@adda",
	"@advarcher",
	"@afuro",
	"@afunai",
	"@agahari",
}

var defaultCharacters = []Character{
	{
		Name:     "Red-haired Melancholic Teen",
		Hair:     "red hair",
		Eyes:     "amber eyes",
		Age:      "teen",
		Build:    "slender",
		Vibe:     "melancholic",
		Footwear: "barefoot",
	},
	{
		Name:      "Happy Filipino Woman",
		Hair:      "long straight black hair",
		Eyes:      "dark brown eyes",
		Age:       "23 year old",
		Build:     "slender and short",
		Ethnicity: "Filipino",
		Vibe:      "happy",
		Footwear:  "wearing flip flops",
	},
	{
		Name:     "Confident Blonde",
		Hair:     "short blonde hair",
		Eyes:     "green eyes",
		Age:      "early 30s",
		Build:    "average build",
		Vibe:     "confident",
		Footwear: "wearing combat boots",
	},
	{
		Name:     "Mysterious Kimono Girl",
		Hair:     "long silvery white hair",
		Eyes:     "red eyes",
		Age:      "12 year old",
		Build:    "slender",
		Vibe:     "mysterious",
		Clothing: "Japanese kimono-inspired clothing",
		Footwear: "traditional footwear",
	},
	{
		Name:     "Energetic Twin-tails",
		Hair:     "pink twin-tailed hair",
		Eyes:     "blue eyes",
		Age:      "younger teen",
		Build:    "petite",
		Vibe:     "energetic",
		Footwear: "wearing sneakers",
	},
}
