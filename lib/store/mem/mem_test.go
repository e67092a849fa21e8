package mem

import (
	"context"
	"errors"
	"testing"

	"github.com/tarancss/drb/lib/store"
)

func TestMappings(t *testing.T) {
	m := New()
	ctx := context.Background()

	um := store.UserMapping{
		UserAddress:    "0xcba75f167b03e34b8a572c50273c082401b073ed",
		DepositAddress: "0xaaaa111111111111111111111111111111111111",
		Key:            "0xkey1",
	}

	if err := m.CreateMapping(ctx, um); err != nil {
		t.Fatalf("Error creating mapping:%e", err)
	}

	// the same user cannot get a second mapping
	if err := m.CreateMapping(ctx, store.UserMapping{
		UserAddress:    um.UserAddress,
		DepositAddress: "0xaaaa222222222222222222222222222222222222",
	}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict, got:%v", err)
	}

	// nor can a deposit address be assigned twice
	if err := m.CreateMapping(ctx, store.UserMapping{
		UserAddress:    "0x357dd3856d856197c1a000bbab4abcb97dfc92c4",
		DepositAddress: um.DepositAddress,
	}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict, got:%v", err)
	}

	got, err := m.MappingByUser(ctx, um.UserAddress)
	if err != nil || got.DepositAddress != um.DepositAddress {
		t.Errorf("mapping by user:%+v err:%v", got, err)
	}

	got, err = m.MappingByDeposit(ctx, um.DepositAddress)
	if err != nil || got.UserAddress != um.UserAddress {
		t.Errorf("mapping by deposit:%+v err:%v", got, err)
	}

	if _, err = m.MappingByUser(ctx, "0xunknown"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got:%v", err)
	}

	addrs, err := m.DepositAddresses(ctx)
	if err != nil || len(addrs) != 1 || addrs[0] != um.DepositAddress {
		t.Errorf("deposit addresses:%v err:%v", addrs, err)
	}
}

func TestSettlements(t *testing.T) {
	m := New()
	ctx := context.Background()

	recs := []store.SettlementRecord{
		{UserAddress: "0xuser1", DepositAddress: "0xdep1", Outcome: store.SettleOK},
		{UserAddress: "0xuser2", DepositAddress: "0xdep2", Outcome: store.SettleFailed, Step: "swap"},
		{UserAddress: "0xuser1", DepositAddress: "0xdep1", Outcome: store.SettleOK},
	}
	for _, r := range recs {
		if err := m.AddSettlement(ctx, r); err != nil {
			t.Fatalf("Error adding settlement:%e", err)
		}
	}

	all, err := m.Settlements(ctx, "")
	if err != nil || len(all) != 3 {
		t.Errorf("settlements:%d err:%v expected:3", len(all), err)
	}

	one, err := m.Settlements(ctx, "0xuser2")
	if err != nil || len(one) != 1 || one[0].Step != "swap" {
		t.Errorf("filtered settlements:%+v err:%v", one, err)
	}
}

func TestFail(t *testing.T) {
	m := New()
	ctx := context.Background()

	m.Fail(store.ErrUnavailable)

	if err := m.CreateMapping(ctx, store.UserMapping{UserAddress: "0xu", DepositAddress: "0xd"}); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got:%v", err)
	}

	m.Fail(nil)

	if err := m.CreateMapping(ctx, store.UserMapping{UserAddress: "0xu", DepositAddress: "0xd"}); err != nil {
		t.Errorf("Error creating mapping after recovery:%e", err)
	}
}
