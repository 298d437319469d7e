package instancerepo

import (
	domain "github.com/timerd/scheduler/internal/biz/instance"
	"github.com/timerd/scheduler/internal/infra/persistence/commonrepo"
)

func (po *InstancePo) FromDomain(in *domain.Instance) *InstancePo {
	return &InstancePo{
		Mode: commonrepo.Mode{
			ID:        in.ID,
			CreatedAt: in.CreatedAt,
			UpdatedAt: in.UpdatedAt,
		},
		Name:          in.Name,
		Address:       in.Address,
		Status:        in.Status,
		LastHeartbeat: in.LastHeartbeat,
	}
}

func (po *InstancePo) ToDomain() *domain.Instance {
	return &domain.Instance{
		ID:            po.ID,
		Name:          po.Name,
		Address:       po.Address,
		Status:        po.Status,
		LastHeartbeat: po.LastHeartbeat,
		CreatedAt:     po.CreatedAt,
		UpdatedAt:     po.UpdatedAt,
	}
}
