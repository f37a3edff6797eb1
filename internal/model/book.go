package model

import "time"

// Book is a catalog record. Copies is the number of physical copies that can
// be out on loan at the same time.
type Book struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Title       string    `json:"title" gorm:"size:255;not null;index"`
	Author      string    `json:"author" gorm:"size:255;not null"`
	ISBN        string    `json:"isbn" gorm:"column:isbn;uniqueIndex;size:20;not null"`
	Year        int       `json:"year" gorm:"not null"`
	Copies      int       `json:"copies" gorm:"not null"`
	Category    string    `json:"category" gorm:"size:100;not null"`
	Pages       int       `json:"pages" gorm:"not null"`
	Description string    `json:"description" gorm:"type:text;not null"`
	Cover       *string   `json:"cover" gorm:"size:255"` // stored filename under the upload dir
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
