package engine

import "github.com/google/uuid"

func NewAccountID() AccountID       { return AccountID(uuid.NewString()) }
func NewInvestmentID() InvestmentID { return InvestmentID(uuid.NewString()) }
func NewRecordID() RecordID         { return RecordID(uuid.NewString()) }
