package models

// LedgerCounter is a named counter advanced with UPDATE inside the writer's
// transaction. The row lock is held until commit, so values follow commit order.
type LedgerCounter struct {
	Name  string `gorm:"column:name;type:text;primaryKey"`
	Value int64  `gorm:"column:value;not null;default:0"`
}

func (LedgerCounter) TableName() string { return "ledger_counters" }
