package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Yellowatch/boxumco"
	"github.com/jackc/pgx/v5"
)

func insertProfile(ctx context.Context, q querier, userID string, profile boxumco.Profile) error {
	switch p := profile.(type) {
	case boxumco.ClientProfile:
		_, err := q.Exec(ctx, `
			INSERT INTO client_profiles (user_id, first_name, last_name, number, address, postcode, dob, company_name)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			userID, p.FirstName, p.LastName, p.Number, p.Address, p.Postcode, p.DOB, p.CompanyName)
		return err
	case boxumco.SupplierProfile:
		_, err := q.Exec(ctx, `
			INSERT INTO supplier_profiles (
				user_id, first_name, last_name, number, address, postcode, dob,
				company_name, company_address, company_description, company_postcode,
				company_number, company_type, company_logo, subcategories)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			userID, p.FirstName, p.LastName, p.Number, p.Address, p.Postcode, p.DOB,
			p.Company.Name, p.Company.Address, p.Company.Description, p.Company.Postcode,
			p.Company.Number, p.Company.Type, p.Company.LogoKey, subcategories(p.Company.Subcategories))
		return err
	default:
		return boxumco.ErrInvalidProfile
	}
}

func updateProfile(ctx context.Context, q querier, userID string, profile boxumco.Profile) error {
	switch p := profile.(type) {
	case boxumco.ClientProfile:
		_, err := q.Exec(ctx, `
			UPDATE client_profiles
			SET first_name = $2, last_name = $3, number = $4, address = $5, postcode = $6, dob = $7, company_name = $8
			WHERE user_id = $1`,
			userID, p.FirstName, p.LastName, p.Number, p.Address, p.Postcode, p.DOB, p.CompanyName)
		return err
	case boxumco.SupplierProfile:
		_, err := q.Exec(ctx, `
			UPDATE supplier_profiles
			SET first_name = $2, last_name = $3, number = $4, address = $5, postcode = $6, dob = $7,
				company_name = $8, company_address = $9, company_description = $10, company_postcode = $11,
				company_number = $12, company_type = $13, company_logo = $14, subcategories = $15
			WHERE user_id = $1`,
			userID, p.FirstName, p.LastName, p.Number, p.Address, p.Postcode, p.DOB,
			p.Company.Name, p.Company.Address, p.Company.Description, p.Company.Postcode,
			p.Company.Number, p.Company.Type, p.Company.LogoKey, subcategories(p.Company.Subcategories))
		return err
	default:
		return boxumco.ErrInvalidProfile
	}
}

func loadProfile(ctx context.Context, q querier, userID string, t boxumco.AccountType) (boxumco.Profile, error) {
	switch t {
	case boxumco.AccountClient:
		var p boxumco.ClientProfile
		err := q.QueryRow(ctx, `
			SELECT first_name, last_name, number, address, postcode, dob, company_name
			FROM client_profiles WHERE user_id = $1`, userID).
			Scan(&p.FirstName, &p.LastName, &p.Number, &p.Address, &p.Postcode, &p.DOB, &p.CompanyName)
		if err != nil {
			return nil, profileError(err)
		}
		return p, nil
	case boxumco.AccountSupplier:
		var p boxumco.SupplierProfile
		err := q.QueryRow(ctx, `
			SELECT first_name, last_name, number, address, postcode, dob,
				company_name, company_address, company_description, company_postcode,
				company_number, company_type, company_logo, subcategories
			FROM supplier_profiles WHERE user_id = $1`, userID).
			Scan(&p.FirstName, &p.LastName, &p.Number, &p.Address, &p.Postcode, &p.DOB,
				&p.Company.Name, &p.Company.Address, &p.Company.Description, &p.Company.Postcode,
				&p.Company.Number, &p.Company.Type, &p.Company.LogoKey, &p.Company.Subcategories)
		if err != nil {
			return nil, profileError(err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("db error: unknown account type %d", t)
	}
}

func profileError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("db error: profile row missing: %w", err)
	}
	return fmt.Errorf("db error: %w", err)
}

func subcategories(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
