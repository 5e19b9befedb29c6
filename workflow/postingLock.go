package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquirePropertyPostingLock serializes ledger writes per (org, property)
// across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that runs the posting transaction.
func AcquirePropertyPostingLock(tx *gorm.DB, orgId string, propertyId int) error {
	lockName := fmt.Sprintf("ledger:%s:%d", orgId, propertyId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire ledger lock for org_id=%s property_id=%d", orgId, propertyId)
	}
	return nil
}

func ReleasePropertyPostingLock(tx *gorm.DB, orgId string, propertyId int) {
	lockName := fmt.Sprintf("ledger:%s:%d", orgId, propertyId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
