package ledger

// The posting rule table. Every consumer that turns a transaction into a
// balance change — real-time posting, bulk import, recomputation, reporting
// and delete reversal — goes through Delta. There is deliberately no second
// formula anywhere in the codebase.
//
// The canonical rule set is type-aware:
//
//	asset               +amount on IN, -amount on OUT
//	liability, equity   +amount on credit, -amount on debit (credits-debits,
//	                    role-independent)
//	income              +amount only on (credit, to-role), -amount otherwise
//	expense             +amount only on (debit, to-role), -amount otherwise

// Role is the side of the transaction an account sits on.
type Role string

const (
	RoleFrom Role = "from"
	RoleTo   Role = "to"
)

// Direction says whether the transaction, seen from a given account's role,
// brings money in or sends it out.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// DirectionFor derives the direction from transaction type and role:
// from-account: credit brings in, debit sends out; to-account: the inverse.
func DirectionFor(t TransactionType, role Role) Direction {
	if role == RoleFrom {
		if t == TxCredit {
			return DirectionIn
		}
		return DirectionOut
	}
	if t == TxCredit {
		return DirectionOut
	}
	return DirectionIn
}

// Sign returns the canonical multiplier for one posting leg.
func Sign(at AccountType, tt TransactionType, role Role) int64 {
	switch at {
	case AccountAsset:
		if DirectionFor(tt, role) == DirectionIn {
			return 1
		}
		return -1
	case AccountLiability, AccountEquity:
		if tt == TxCredit {
			return 1
		}
		return -1
	case AccountIncome:
		if tt == TxCredit && role == RoleTo {
			return 1
		}
		return -1
	case AccountExpense:
		if tt == TxDebit && role == RoleTo {
			return 1
		}
		return -1
	}
	return 0
}

// Delta applies the canonical sign to an unsigned amount.
func Delta(at AccountType, tt TransactionType, role Role, amount int64) int64 {
	return Sign(at, tt, role) * amount
}
