package profile

import (
	"context"
	"fmt"

	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/model"
)

// Provisioner はアカウント作成時に対応するプロフィールを作成する。
// identity.Service.OnAccountCreatedに登録して使用する。
type Provisioner struct {
	store docstore.Gateway
}

// NewProvisioner はProvisionerを生成する。
func NewProvisioner(store docstore.Gateway) *Provisioner {
	return &Provisioner{store: store}
}

// Provision はaccountのプロフィールを作成する。既に存在する場合は何もしない。
func (p *Provisioner) Provision(ctx context.Context, account *model.Account) error {
	existing, err := findOne(ctx, p.store, "accountId", account.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	profile := &model.Profile{
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.DisplayName,
	}
	data := profile.Data()
	delete(data, "updatedAt")
	if _, err := p.store.Create(ctx, model.CollectionProfiles, data); err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}
