package inventory

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/slabworks/slabsync-backend/pkg/enums"
	pkgerrors "github.com/slabworks/slabsync-backend/pkg/errors"
)

func validInput() CreateRecordInput {
	cert := "PSA-12345678"
	return CreateRecordInput{
		CertNumber:  &cert,
		SKU:         "pokemon-charizard-psa9",
		Title:       "Charizard Holo PSA 9",
		Category:    "pokemon",
		Brand:       "Pokemon",
		Graded:      true,
		Price:       decimal.NewFromInt(450),
		Quantity:    1,
		Location:    "store-a",
		Marketplace: enums.MarketplaceSquare,
	}
}

func TestValidateCreateAcceptsValidInput(t *testing.T) {
	if err := validateCreate(validInput()); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}
}

func TestValidateCreateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CreateRecordInput)
	}{
		{"missingSKU", func(in *CreateRecordInput) { in.SKU = "  " }},
		{"missingTitle", func(in *CreateRecordInput) { in.Title = "" }},
		{"missingLocation", func(in *CreateRecordInput) { in.Location = "" }},
		{"invalidMarketplace", func(in *CreateRecordInput) { in.Marketplace = "amazon" }},
		{"negativeQuantity", func(in *CreateRecordInput) { in.Quantity = -1 }},
		{"negativePrice", func(in *CreateRecordInput) { in.Price = decimal.NewFromInt(-5) }},
		{"gradedWithoutCert", func(in *CreateRecordInput) { in.CertNumber = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(&input)
			err := validateCreate(input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error code, got %v", err)
			}
		})
	}
}

func TestValidateCreateAllowsUngradedWithoutCert(t *testing.T) {
	input := validInput()
	input.Graded = false
	input.CertNumber = nil
	input.Grade = nil
	if err := validateCreate(input); err != nil {
		t.Fatalf("expected ungraded record without cert to pass, got %v", err)
	}
}

func TestNormalizeOptional(t *testing.T) {
	padded := "  BGS-999  "
	if got := normalizeOptional(&padded); got == nil || *got != "BGS-999" {
		t.Fatalf("expected trimmed value, got %v", got)
	}

	blank := "   "
	if got := normalizeOptional(&blank); got != nil {
		t.Fatalf("expected nil for blank value, got %q", *got)
	}

	if got := normalizeOptional(nil); got != nil {
		t.Fatal("expected nil passthrough")
	}
}
