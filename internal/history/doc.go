// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history keeps each user's list of past chats.
//
// The list lives in the local store under chatHistory_<userID>, most recent
// first, with at most one entry per chat id. Saving an existing id replaces
// the entry in place so a chat keeps its position while it is continued.
//
// # Usage
//
//	ix := history.New(store, user.ID)
//	if err := ix.Save(ctx, chat); err != nil {
//	    return err
//	}
//	chats, _ := ix.Search(ctx, "invoice")
//	fmt.Print(history.FormatList(chats))
package history
