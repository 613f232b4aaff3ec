package models

type Category struct {
	BaseModel
	Name string `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`

	Notes []Note `json:"-" gorm:"many2many:note_categories"`
}

func (Category) TableName() string {
	return "categories"
}
