package events

import "time"

// Event type codes emitted by the edit-session core.
const (
	TypeSaveSucceeded    = "SAVE_SUCCEEDED"
	TypeSaveFailed       = "SAVE_FAILED"
	TypePermissionNeeded = "PERMISSION_NEEDED"
	TypeAssetFetchFailed = "ASSET_FETCH_FAILED"
)

// SaveSucceeded is emitted after a document write completes.
func SaveSucceeded(handle, path string) BaseEvent {
	return BaseEvent{
		Type: TypeSaveSucceeded,
		Data: map[string]interface{}{
			"collection_handle": handle,
			"document_path":     path,
		},
		OccurredAt: time.Now(),
	}
}

// SaveFailed is emitted when a document write returns an error.
func SaveFailed(handle, path string, err error) BaseEvent {
	data := map[string]interface{}{
		"collection_handle": handle,
		"document_path":     path,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	return BaseEvent{
		Type:       TypeSaveFailed,
		Data:       data,
		OccurredAt: time.Now(),
	}
}

// PermissionNeeded is emitted when a remembered collection needs the user to
// re-grant access before it can be opened.
func PermissionNeeded(handle, displayName string) BaseEvent {
	return BaseEvent{
		Type: TypePermissionNeeded,
		Data: map[string]interface{}{
			"collection_handle": handle,
			"display_name":      displayName,
		},
		OccurredAt: time.Now(),
	}
}

// AssetFetchFailed is emitted when an inserted asset's bytes could not be
// retrieved and its placeholder was marked failed.
func AssetFetchFailed(placeholderId, source string, err error) BaseEvent {
	data := map[string]interface{}{
		"placeholder_id": placeholderId,
		"source":         source,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	return BaseEvent{
		Type:       TypeAssetFetchFailed,
		Data:       data,
		OccurredAt: time.Now(),
	}
}
