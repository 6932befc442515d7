package models

import pkgerrors "github.com/vedant2606-dev/bg-removal-service/pkg/errors"

type PlanID string

const (
	PlanBasic    PlanID = "Basic"
	PlanAdvanced PlanID = "Advanced"
	PlanBusiness PlanID = "Business"
)

type Plan struct {
	ID      PlanID `json:"id"`
	Credits int64  `json:"credits"`
	Amount  int64  `json:"amount"`
}

var plans = map[PlanID]Plan{
	PlanBasic:    {ID: PlanBasic, Credits: 100, Amount: 10},
	PlanAdvanced: {ID: PlanAdvanced, Credits: 500, Amount: 50},
	PlanBusiness: {ID: PlanBusiness, Credits: 5000, Amount: 250},
}

func PlanByID(id PlanID) (Plan, error) {
	plan, ok := plans[id]
	if !ok {
		return Plan{}, pkgerrors.ErrInvalidPlan
	}
	return plan, nil
}
