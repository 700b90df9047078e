// Package patients manages the patient directory.
package patients

import (
	"strings"
	"time"
)

type Patient struct {
	ID         string    `dynamodbav:"id" json:"id"`
	FirstName  string    `dynamodbav:"firstName" json:"firstName"`
	LastName   string    `dynamodbav:"lastName" json:"lastName"`
	Email      string    `dynamodbav:"email,omitempty" json:"email,omitempty"`
	Phone      string    `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	BirthDate  string    `dynamodbav:"birthDate,omitempty" json:"birthDate,omitempty"`
	Address    string    `dynamodbav:"address,omitempty" json:"address,omitempty"`
	City       string    `dynamodbav:"city,omitempty" json:"city,omitempty"`
	PostalCode string    `dynamodbav:"postalCode,omitempty" json:"postalCode,omitempty"`
	Notes      string    `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
	SearchKey  string    `dynamodbav:"searchKey" json:"-"`
	CreatedAt  time.Time `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time `dynamodbav:"updatedAt" json:"updatedAt"`
}

// DisplayName is "First Last", falling back to whichever part is set.
func (p Patient) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// searchKey is the lowercased text matched by directory searches. DynamoDB
// contains() is case sensitive, so searches run against this copy.
func searchKey(p Patient) string {
	return strings.ToLower(strings.Join([]string{p.FirstName, p.LastName, p.Email}, " "))
}
