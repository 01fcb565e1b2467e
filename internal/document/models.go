package document

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document is a diagram owned by a single user.
type Document struct {
	ID        primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Title     string             `json:"title" bson:"title"`
	UserID    primitive.ObjectID `json:"userId" bson:"userId"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Shape is one element on a document's canvas. Index is the client's own
// numeric id for the shape and is serialized as "id".
type Shape struct {
	ID              primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	DocID           primitive.ObjectID `json:"_docId" bson:"docId"`
	Index           int                `json:"id" bson:"index"`
	Type            string             `json:"type" bson:"type" validate:"required"`
	Label           string             `json:"label" bson:"label"`
	TranslateX      float64            `json:"translateX" bson:"translateX"`
	TranslateY      float64            `json:"translateY" bson:"translateY"`
	BackgroundColor string             `json:"backgroundColor" bson:"backgroundColor"`
	TextColor       string             `json:"textColor" bson:"textColor"`
	BorderColor     string             `json:"borderColor" bson:"borderColor" validate:"required"`
}

// ShapePatch carries a partial shape update; nil fields are left unchanged.
type ShapePatch struct {
	Index           *int     `json:"id,omitempty"`
	Type            *string  `json:"type,omitempty"`
	Label           *string  `json:"label,omitempty"`
	TranslateX      *float64 `json:"translateX,omitempty"`
	TranslateY      *float64 `json:"translateY,omitempty"`
	BackgroundColor *string  `json:"backgroundColor,omitempty"`
	TextColor       *string  `json:"textColor,omitempty"`
	BorderColor     *string  `json:"borderColor,omitempty"`
}

// Apply copies the set fields of p onto s.
func (p ShapePatch) Apply(s *Shape) {
	if p.Index != nil {
		s.Index = *p.Index
	}
	if p.Type != nil {
		s.Type = *p.Type
	}
	if p.Label != nil {
		s.Label = *p.Label
	}
	if p.TranslateX != nil {
		s.TranslateX = *p.TranslateX
	}
	if p.TranslateY != nil {
		s.TranslateY = *p.TranslateY
	}
	if p.BackgroundColor != nil {
		s.BackgroundColor = *p.BackgroundColor
	}
	if p.TextColor != nil {
		s.TextColor = *p.TextColor
	}
	if p.BorderColor != nil {
		s.BorderColor = *p.BorderColor
	}
}

// Snapshot is the exported form of a document with its shapes.
type Snapshot struct {
	Document   Document  `json:"document"`
	Shapes     []Shape   `json:"shapes"`
	ExportedAt time.Time `json:"exportedAt"`
}
