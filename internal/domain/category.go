package domain

// Category groups tags on the map.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Categories is the static category table. It will move to the server eventually.
var Categories = []Category{
	{ID: 1, Name: "校園設施"},
	{ID: 2, Name: "校園問題"},
	{ID: 3, Name: "校園狀態"},
}

// CategoryByID returns the category with the given id.
func CategoryByID(id int) (Category, bool) {
	for _, c := range Categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}
