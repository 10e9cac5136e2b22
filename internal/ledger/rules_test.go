package ledger

import "testing"

func TestDirectionFor(t *testing.T) {
	cases := []struct {
		tt   TransactionType
		role Role
		want Direction
	}{
		{TxCredit, RoleFrom, DirectionIn},
		{TxDebit, RoleFrom, DirectionOut},
		{TxCredit, RoleTo, DirectionOut},
		{TxDebit, RoleTo, DirectionIn},
	}
	for _, c := range cases {
		if got := DirectionFor(c.tt, c.role); got != c.want {
			t.Fatalf("DirectionFor(%s, %s) = %s, want %s", c.tt, c.role, got, c.want)
		}
	}
}

func TestSignMatrix(t *testing.T) {
	// Full 5 account types x 2 transaction types x 2 roles matrix.
	cases := []struct {
		at   AccountType
		tt   TransactionType
		role Role
		want int64
	}{
		{AccountAsset, TxCredit, RoleFrom, 1},
		{AccountAsset, TxCredit, RoleTo, -1},
		{AccountAsset, TxDebit, RoleFrom, -1},
		{AccountAsset, TxDebit, RoleTo, 1},

		{AccountLiability, TxCredit, RoleFrom, 1},
		{AccountLiability, TxCredit, RoleTo, 1},
		{AccountLiability, TxDebit, RoleFrom, -1},
		{AccountLiability, TxDebit, RoleTo, -1},

		{AccountEquity, TxCredit, RoleFrom, 1},
		{AccountEquity, TxCredit, RoleTo, 1},
		{AccountEquity, TxDebit, RoleFrom, -1},
		{AccountEquity, TxDebit, RoleTo, -1},

		{AccountIncome, TxCredit, RoleFrom, -1},
		{AccountIncome, TxCredit, RoleTo, 1},
		{AccountIncome, TxDebit, RoleFrom, -1},
		{AccountIncome, TxDebit, RoleTo, -1},

		{AccountExpense, TxCredit, RoleFrom, -1},
		{AccountExpense, TxCredit, RoleTo, -1},
		{AccountExpense, TxDebit, RoleFrom, -1},
		{AccountExpense, TxDebit, RoleTo, 1},
	}
	for _, c := range cases {
		if got := Sign(c.at, c.tt, c.role); got != c.want {
			t.Fatalf("Sign(%s, %s, %s) = %d, want %d", c.at, c.tt, c.role, got, c.want)
		}
	}
}

func TestDeltaCheckingGroceriesExample(t *testing.T) {
	// Debit of 200.00 from an asset account to an expense account:
	// asset loses 200.00, expense gains 200.00.
	if got := Delta(AccountAsset, TxDebit, RoleFrom, 20000); got != -20000 {
		t.Fatalf("asset from-leg = %d, want -20000", got)
	}
	if got := Delta(AccountExpense, TxDebit, RoleTo, 20000); got != 20000 {
		t.Fatalf("expense to-leg = %d, want 20000", got)
	}
}

func TestDeltaIsReversible(t *testing.T) {
	for _, at := range []AccountType{AccountAsset, AccountLiability, AccountEquity, AccountIncome, AccountExpense} {
		for _, tt := range []TransactionType{TxDebit, TxCredit} {
			for _, role := range []Role{RoleFrom, RoleTo} {
				d := Delta(at, tt, role, 12345)
				if d+(-d) != 0 || d == 0 {
					t.Fatalf("Delta(%s, %s, %s) = %d, want non-zero reversible delta", at, tt, role, d)
				}
			}
		}
	}
}
