package tensor

import (
	"testing"
)

func TestNewTensor(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	tensor, err := NewTensor([]int{2, 3}, Float32, data)
	if err != nil {
		t.Fatalf("Failed to create tensor: %v", err)
	}

	if tensor.NumElems != 6 {
		t.Errorf("Expected 6 elements, got %d", tensor.NumElems)
	}

	expectedStrides := []int{3, 1}
	for i, stride := range tensor.Strides {
		if stride != expectedStrides[i] {
			t.Errorf("Expected stride %d at index %d, got %d", expectedStrides[i], i, stride)
		}
	}

	if tensor.RequiresGrad() {
		t.Error("New tensor should not require gradients by default")
	}
}

func TestNewTensorErrors(t *testing.T) {
	t.Run("WrongDataLength", func(t *testing.T) {
		_, err := NewTensor([]int{2, 3}, Float32, []float32{1, 2, 3})
		if err == nil {
			t.Error("Expected error for mismatched data length")
		}
	})

	t.Run("EmptyShape", func(t *testing.T) {
		_, err := NewTensor([]int{}, Float32, []float32{1})
		if err == nil {
			t.Error("Expected error for empty shape")
		}
	})

	t.Run("ZeroDimension", func(t *testing.T) {
		_, err := NewTensor([]int{2, 0}, Float32, nil)
		if err == nil {
			t.Error("Expected error for zero dimension")
		}
	})

	t.Run("WrongDataType", func(t *testing.T) {
		_, err := NewTensor([]int{2}, Float32, []int32{1, 2})
		if err == nil {
			t.Error("Expected error for wrong data type")
		}
	})
}

func TestZerosAndOnes(t *testing.T) {
	zeros, err := Zeros([]int{2, 2}, Float32)
	if err != nil {
		t.Fatalf("Failed to create zeros tensor: %v", err)
	}

	zeroData, err := zeros.GetFloat32Data()
	if err != nil {
		t.Fatalf("Failed to get data: %v", err)
	}
	for i, val := range zeroData {
		if val != 0 {
			t.Errorf("Expected 0 at index %d, got %f", i, val)
		}
	}

	ones, err := Ones([]int{2, 2}, Float32)
	if err != nil {
		t.Fatalf("Failed to create ones tensor: %v", err)
	}

	oneData, err := ones.GetFloat32Data()
	if err != nil {
		t.Fatalf("Failed to get data: %v", err)
	}
	for i, val := range oneData {
		if val != 1 {
			t.Errorf("Expected 1 at index %d, got %f", i, val)
		}
	}
}

func TestFull(t *testing.T) {
	tensor, err := Full([]int{3}, float32(2.5), Float32)
	if err != nil {
		t.Fatalf("Failed to create full tensor: %v", err)
	}

	data, err := tensor.GetFloat32Data()
	if err != nil {
		t.Fatalf("Failed to get data: %v", err)
	}
	for i, val := range data {
		if val != 2.5 {
			t.Errorf("Expected 2.5 at index %d, got %f", i, val)
		}
	}
}

func TestFromScalar(t *testing.T) {
	tensor := FromScalar(3.14)

	if tensor.NumElems != 1 {
		t.Errorf("Expected 1 element, got %d", tensor.NumElems)
	}

	val, err := tensor.Item()
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if val.(float32) != 3.14 {
		t.Errorf("Expected 3.14, got %f", val.(float32))
	}
}

func TestRandomNormal(t *testing.T) {
	tensor, err := RandomNormal([]int{10, 10}, 0.0, 1.0, Float32)
	if err != nil {
		t.Fatalf("Failed to create random tensor: %v", err)
	}

	data, err := tensor.GetFloat32Data()
	if err != nil {
		t.Fatalf("Failed to get data: %v", err)
	}

	if len(data) != 100 {
		t.Errorf("Expected 100 elements, got %d", len(data))
	}

	allSame := true
	for i := 1; i < len(data); i++ {
		if data[i] != data[0] {
			allSame = false
			break
		}
	}
	if allSame {
		t.Error("Random tensor should not have all identical values")
	}
}

func TestSetData(t *testing.T) {
	tensor, err := NewTensor([]int{2, 2}, Float32, []float32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Failed to create tensor: %v", err)
	}

	if err := tensor.SetData([]float32{5, 6, 7, 8}); err != nil {
		t.Fatalf("Failed to set data: %v", err)
	}

	data, _ := tensor.GetFloat32Data()
	if data[0] != 5 || data[3] != 8 {
		t.Errorf("Expected data [5 6 7 8], got %v", data)
	}

	if err := tensor.SetData([]float32{1, 2}); err == nil {
		t.Error("Expected error for mismatched data length")
	}
}

func TestClone(t *testing.T) {
	original, err := NewTensor([]int{2, 2}, Float32, []float32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Failed to create tensor: %v", err)
	}
	original.SetRequiresGrad(true)

	clone, err := original.Clone()
	if err != nil {
		t.Fatalf("Failed to clone tensor: %v", err)
	}

	if !clone.RequiresGrad() {
		t.Error("Clone should preserve requiresGrad")
	}

	// Mutating the clone must not affect the original
	cloneData, _ := clone.GetFloat32Data()
	cloneData[0] = 99

	originalData, _ := original.GetFloat32Data()
	if originalData[0] != 1 {
		t.Errorf("Original data changed after clone mutation: got %f", originalData[0])
	}
}

func TestReshapeMethod(t *testing.T) {
	tensor, err := NewTensor([]int{2, 3}, Float32, []float32{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("Failed to create tensor: %v", err)
	}

	t.Run("Basic", func(t *testing.T) {
		reshaped, err := tensor.Reshape([]int{3, 2})
		if err != nil {
			t.Fatalf("Failed to reshape: %v", err)
		}
		if reshaped.Shape[0] != 3 || reshaped.Shape[1] != 2 {
			t.Errorf("Expected shape [3 2], got %v", reshaped.Shape)
		}
	})

	t.Run("InferredDimension", func(t *testing.T) {
		reshaped, err := tensor.Reshape([]int{-1, 2})
		if err != nil {
			t.Fatalf("Failed to reshape with -1: %v", err)
		}
		if reshaped.Shape[0] != 3 {
			t.Errorf("Expected inferred dimension 3, got %d", reshaped.Shape[0])
		}
	})

	t.Run("SharesData", func(t *testing.T) {
		reshaped, err := tensor.Reshape([]int{6})
		if err != nil {
			t.Fatalf("Failed to reshape: %v", err)
		}
		reshapedData, _ := reshaped.GetFloat32Data()
		reshapedData[0] = 42

		originalData, _ := tensor.GetFloat32Data()
		if originalData[0] != 42 {
			t.Error("Reshaped tensor should share underlying data")
		}
		originalData[0] = 1
	})

	t.Run("WrongSize", func(t *testing.T) {
		_, err := tensor.Reshape([]int{4, 2})
		if err == nil {
			t.Error("Expected error for incompatible reshape")
		}
	})
}

func TestAtAndSetAt(t *testing.T) {
	tensor, err := NewTensor([]int{2, 3}, Float32, []float32{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("Failed to create tensor: %v", err)
	}

	val, err := tensor.At(1, 2)
	if err != nil {
		t.Fatalf("Failed to read element: %v", err)
	}
	if val.(float32) != 6 {
		t.Errorf("Expected 6 at [1 2], got %f", val.(float32))
	}

	if err := tensor.SetAt(float32(10), 0, 1); err != nil {
		t.Fatalf("Failed to set element: %v", err)
	}
	val, _ = tensor.At(0, 1)
	if val.(float32) != 10 {
		t.Errorf("Expected 10 at [0 1], got %f", val.(float32))
	}

	if _, err := tensor.At(2, 0); err == nil {
		t.Error("Expected error for out of bounds index")
	}
	if _, err := tensor.At(0); err == nil {
		t.Error("Expected error for wrong number of indices")
	}
}

func TestEqual(t *testing.T) {
	a, _ := NewTensor([]int{2, 2}, Float32, []float32{1, 2, 3, 4})
	b, _ := NewTensor([]int{2, 2}, Float32, []float32{1, 2, 3, 4})
	c, _ := NewTensor([]int{2, 2}, Float32, []float32{1, 2, 3, 5})
	d, _ := NewTensor([]int{4}, Float32, []float32{1, 2, 3, 4})

	equal, err := a.Equal(b)
	if err != nil {
		t.Fatalf("Failed to compare tensors: %v", err)
	}
	if !equal {
		t.Error("Expected identical tensors to be equal")
	}

	equal, _ = a.Equal(c)
	if equal {
		t.Error("Expected tensors with different values to be unequal")
	}

	equal, _ = a.Equal(d)
	if equal {
		t.Error("Expected tensors with different shapes to be unequal")
	}
}

func TestItem(t *testing.T) {
	scalar, err := NewTensor([]int{1}, Float32, []float32{42})
	if err != nil {
		t.Fatalf("Failed to create tensor: %v", err)
	}

	val, err := scalar.Item()
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if val.(float32) != 42 {
		t.Errorf("Expected 42, got %f", val.(float32))
	}

	multi, _ := NewTensor([]int{2}, Float32, []float32{1, 2})
	if _, err := multi.Item(); err == nil {
		t.Error("Expected error calling Item on multi-element tensor")
	}
}
