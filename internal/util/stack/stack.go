// Copyright 2025 The fpm Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package stack provides the explicit traversal stack used when walking
// bundle graphs. The graph may be deep and self-referencing across
// repositories, so graph construction and the install traversal use a
// stack instead of recursion.
package stack

import "fmt"

// New returns a new empty stack.
func New[T any]() *Stack[T] {
	return &Stack[T]{}
}

type Stack[T any] struct {
	slice []T
}

func (s *Stack[T]) Push(v T) {
	s.slice = append(s.slice, v)
}

// PushAll pushes the values in order, so the last value is popped first.
func (s *Stack[T]) PushAll(vs []T) {
	s.slice = append(s.slice, vs...)
}

func (s *Stack[T]) Pop() T {
	l := len(s.slice)
	if l == 0 {
		panic(fmt.Errorf("can't pop an empty stack"))
	}
	v := s.slice[l-1]
	s.slice = s.slice[:l-1]
	return v
}

func (s *Stack[T]) Len() int {
	return len(s.slice)
}
