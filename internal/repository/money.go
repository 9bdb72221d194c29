package repository

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fieldops/dispatch-service/internal/domain"
)

// numeric encodes an amount for a NUMERIC(12,2) column.
func numeric(m domain.Money) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(int64(m)), Exp: -2, Valid: true}
}

// moneyColumn scans a NUMERIC column into minor units.
type moneyColumn struct {
	dst *domain.Money
}

func scanMoney(dst *domain.Money) *moneyColumn { return &moneyColumn{dst: dst} }

func (c *moneyColumn) ScanNumeric(v pgtype.Numeric) error {
	if !v.Valid {
		*c.dst = 0
		return nil
	}
	if v.NaN || v.InfinityModifier != pgtype.Finite {
		return fmt.Errorf("amount is not a finite number")
	}
	cents, err := numericToCents(v.Int, v.Exp)
	if err != nil {
		return err
	}
	*c.dst = cents
	return nil
}

// numericToCents scales digits*10^exp to hundredths, rounding half away from zero.
func numericToCents(digits *big.Int, exp int32) (domain.Money, error) {
	scaled := new(big.Int).Set(digits)
	shift := int64(exp) + 2
	ten := big.NewInt(10)
	if shift >= 0 {
		scaled.Mul(scaled, new(big.Int).Exp(ten, big.NewInt(shift), nil))
	} else {
		div := new(big.Int).Exp(ten, big.NewInt(-shift), nil)
		q, r := new(big.Int).QuoRem(scaled, div, new(big.Int))
		if new(big.Int).Mul(new(big.Int).Abs(r), big.NewInt(2)).Cmp(div) >= 0 {
			if scaled.Sign() < 0 {
				q.Sub(q, big.NewInt(1))
			} else {
				q.Add(q, big.NewInt(1))
			}
		}
		scaled = q
	}
	if !scaled.IsInt64() {
		return 0, fmt.Errorf("amount out of range")
	}
	return domain.Money(scaled.Int64()), nil
}
