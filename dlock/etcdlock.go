package dlock

import (
	"context"
	"sync"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/luoqeng/asynckit/errs"
	"github.com/luoqeng/asynckit/mlog"
)

const defaultLeaseTTLSeconds = 5

type EtcdLockOpt struct {
	// LeaseTTL bounds how long a key is held if the owner disappears
	// without unlocking. Seconds; defaults to 5.
	LeaseTTL int64
}

// EtcdLock is a lease-backed exclusive lock. The lock key is created only
// when absent (CreateRevision == 0) and carries this instance's owner id,
// so only the owner can release it. Waiters watch the key for deletion.
type EtcdLock struct {
	cli   *clientv3.Client
	ttl   int64
	owner string // unique identity of this locker instance

	mx     sync.Mutex
	leases map[string]clientv3.LeaseID
}

func NewEtcdLock(cli *clientv3.Client, opt *EtcdLockOpt) *EtcdLock {
	ttl := int64(defaultLeaseTTLSeconds)
	if opt != nil && opt.LeaseTTL > 0 {
		ttl = opt.LeaseTTL
	}
	return &EtcdLock{
		cli:    cli,
		ttl:    ttl,
		owner:  uuid.NewString(),
		leases: make(map[string]clientv3.LeaseID),
	}
}

// Lock blocks until lockKey is acquired or ctx is done.
func (l *EtcdLock) Lock(ctx context.Context, lockKey string) error {
	for {
		lease, err := l.cli.Grant(ctx, l.ttl)
		if err != nil {
			return err
		}
		txn := l.cli.Txn(ctx).
			If(clientv3.Compare(clientv3.CreateRevision(lockKey), "=", 0)).
			Then(clientv3.OpPut(lockKey, l.owner, clientv3.WithLease(lease.ID))).
			Else(clientv3.OpGet(lockKey))
		resp, err := txn.Commit()
		if err != nil {
			return err
		}
		if resp.Succeeded {
			l.mx.Lock()
			l.leases[lockKey] = lease.ID
			l.mx.Unlock()
			mlog.Debugf("etcd lock acquired key=%s owner=%s", lockKey, l.owner)
			return nil
		}
		// Held by someone else. Give the unused lease back and wait for
		// the current holder's key to go away, then race again.
		if _, err := l.cli.Revoke(ctx, lease.ID); err != nil {
			mlog.Warnf("etcd lock revoke unused lease err:%v", err)
		}
		if err := l.waitDelete(ctx, lockKey, resp.Header.Revision+1); err != nil {
			return err
		}
	}
}

// TryLock makes a single acquisition attempt and never waits.
func (l *EtcdLock) TryLock(ctx context.Context, lockKey string) (bool, error) {
	lease, err := l.cli.Grant(ctx, l.ttl)
	if err != nil {
		return false, err
	}
	resp, err := l.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(lockKey), "=", 0)).
		Then(clientv3.OpPut(lockKey, l.owner, clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil {
		return false, err
	}
	if !resp.Succeeded {
		if _, err := l.cli.Revoke(ctx, lease.ID); err != nil {
			mlog.Warnf("etcd lock revoke unused lease err:%v", err)
		}
		return false, nil
	}
	l.mx.Lock()
	l.leases[lockKey] = lease.ID
	l.mx.Unlock()
	return true, nil
}

// UnLock releases lockKey if this instance owns it.
func (l *EtcdLock) UnLock(ctx context.Context, lockKey string) (bool, error) {
	l.mx.Lock()
	leaseID, ok := l.leases[lockKey]
	delete(l.leases, lockKey)
	l.mx.Unlock()
	if !ok {
		return false, errs.LockFailed.Printf("unlock of unheld key=%s", lockKey)
	}
	resp, err := l.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(lockKey), "=", l.owner)).
		Then(clientv3.OpDelete(lockKey)).
		Commit()
	if err != nil {
		return false, err
	}
	// Revoking the lease also covers the case where the key already
	// expired out from under us.
	if _, err := l.cli.Revoke(ctx, leaseID); err != nil {
		mlog.Warnf("etcd lock revoke lease err:%v", err)
	}
	return resp.Succeeded, nil
}

func (l *EtcdLock) waitDelete(ctx context.Context, lockKey string, rev int64) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wch := l.cli.Watch(wctx, lockKey, clientv3.WithRev(rev))
	for wr := range wch {
		if err := wr.Err(); err != nil {
			return err
		}
		for _, ev := range wr.Events {
			if ev.Type == clientv3.EventTypeDelete {
				return nil
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errs.LockFailed.Printf("watch closed for key=%s", lockKey)
}

// Owner reports this locker instance's identity, useful in diagnostics.
func (l *EtcdLock) Owner() string {
	return l.owner
}
