package waitercalls

import "context"

type (
	Storage interface {
		CreateWaiterCall(ctx context.Context, call Call) (*Call, error)
		GetWaiterCall(ctx context.Context, criteria GetCriteria) (*Call, error)
		ListWaiterCalls(ctx context.Context, criteria ListCriteria) ([]*Call, error)
		UpdateWaiterCallStatus(ctx context.Context, criteria GetCriteria, from, to Status) (*Call, error)
	}

	Publisher interface {
		PublishWaiterCall(ctx context.Context, action string, call *Call)
	}
)
