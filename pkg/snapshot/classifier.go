/*
 * Copyright 2021-present by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package snapshot

import "github.com/rabbitstack/memctx/pkg/vm"

// Eligible determines if the region participates in the snapshot. Only
// anonymous memory is saved. Regions backing the thread stack or mapped
// from files never have their pages protected, captured, or restored.
func Eligible(rgn vm.Region) bool {
	return rgn.IsAnonymous()
}
